package model

import (
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// Vector6 is a force/moment vector [Fx, Fy, Fz, Mx, My, Mz].
type Vector6 [6]float64

// Vector3 is a force vector [Fx, Fy, Fz].
type Vector3 [3]float64

// Vector6FromSlice copies up to six components, zero-padding missing ones.
func Vector6FromSlice(s []float64) Vector6 {
	var v Vector6
	copy(v[:], s)
	return v
}

func Vector3FromSlice(s []float64) Vector3 {
	var v Vector3
	copy(v[:], s)
	return v
}

// Linear is the Euclidean norm of the force part.
func (v Vector6) Linear() float64 {
	return floats.Norm(v[:3], 2)
}

// Moment is the Euclidean norm of the moment part.
func (v Vector6) Moment() float64 {
	return floats.Norm(v[3:], 2)
}

func (v Vector3) Norm() float64 {
	return floats.Norm(v[:], 2)
}

// FormatFloat renders v with a fixed number of decimals.
func FormatFloat(v float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}
