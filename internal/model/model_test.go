package model

import (
	"encoding/json"
	"testing"
)

func TestVectorMagnitudes(t *testing.T) {
	cases := []struct {
		in        []float64
		linear    string
		moment    string
		precision int
	}{
		{[]float64{3, 4, 0, 0, 0, 5}, "5.00", "5.00", 2},
		{[]float64{1, 2, 2, 2, 3, 6}, "3.000", "7.000", 3},
		{nil, "0.00", "0.00", 2},
		{[]float64{0, 0, 12}, "12.000", "0.000", 3},
	}
	for _, c := range cases {
		v := Vector6FromSlice(c.in)
		if got := FormatFloat(v.Linear(), c.precision); got != c.linear {
			t.Fatalf("%v linear => %s want %s", c.in, got, c.linear)
		}
		if got := FormatFloat(v.Moment(), c.precision); got != c.moment {
			t.Fatalf("%v moment => %s want %s", c.in, got, c.moment)
		}
	}
}

func TestVector3Norm(t *testing.T) {
	if got := FormatFloat(Vector3FromSlice([]float64{6, 8}).Norm(), 3); got != "10.000" {
		t.Fatalf("norm => %s", got)
	}
}

func TestSubcaseLookupsDefaultToZero(t *testing.T) {
	var nilSubcase *Subcase
	if v := nilSubcase.NodeForces(42); v != (Vector6{}) {
		t.Fatalf("nil subcase should give zero vector, got %v", v)
	}

	raw := `{"id":1,"node_id2forces":{"42":[3,4,0,0,0,5]},"node_id2spcforces":{}}`
	var sc Subcase
	if err := json.Unmarshal([]byte(raw), &sc); err != nil {
		t.Fatalf("decode subcase: %v", err)
	}
	if v := sc.NodeForces(42); v.Linear() != 5 || v.Moment() != 5 {
		t.Fatalf("unexpected forces %v", v)
	}
	if v := sc.NodeForces(7); v != (Vector6{}) {
		t.Fatalf("missing node should give zero vector, got %v", v)
	}
	if v := sc.NodeSPCForces(42); v != (Vector6{}) {
		t.Fatalf("missing spc force should give zero vector, got %v", v)
	}
}

func TestClusterAndMPCHelpers(t *testing.T) {
	c := SPCCluster{
		ID:                    3,
		SPCIDs:                "10, 11,,12",
		SubcaseID2SummedForce: map[string][]float64{"1": {1, 0, 0, 0, 0, 0}},
	}
	if ids := c.SPCNodeIDs(); len(ids) != 3 || ids[2] != "12" {
		t.Fatalf("unexpected spc ids %v", ids)
	}
	if v := c.SummedForces(2); v != (Vector6{}) {
		t.Fatalf("absent subcase should be zero, got %v", v)
	}

	m := MPC{
		ID:           5,
		MasterNode:   100,
		Nodes:        "1,2,3",
		PartID2Nodes: map[string][]int{"10": {1}, "2": {2, 3}},
		SubcaseID2PartID2Force: map[string]map[string][]float64{
			"1": {"2": {0, 3, 4}},
		},
	}
	parts := m.PartIDs()
	if len(parts) != 2 || parts[0] != "2" || parts[1] != "10" {
		t.Fatalf("parts not numerically sorted: %v", parts)
	}
	if got := m.PartForces(1, "2").Norm(); got != 5 {
		t.Fatalf("part force norm => %v", got)
	}
	if got := m.PartForces(1, "10"); got != (Vector3{}) {
		t.Fatalf("absent part should be zero, got %v", got)
	}
	if got := m.PartForces(9, "2"); got != (Vector3{}) {
		t.Fatalf("absent subcase should be zero, got %v", got)
	}
	if ids := m.PartNodeIDs("2"); len(ids) != 2 || ids[1] != "3" {
		t.Fatalf("part node ids %v", ids)
	}
}
