package model

import (
	"sort"
	"strconv"
	"strings"
)

type Node struct {
	ID     int     `json:"id"`
	CoordX float64 `json:"coord_x"`
	CoordY float64 `json:"coord_y"`
	CoordZ float64 `json:"coord_z"`
}

// SPC is a single-point constraint. Dofs maps "1".."6" to the constrained value;
// a missing or null entry means the DOF is free.
type SPC struct {
	NodeID   int            `json:"node_id"`
	SystemID int            `json:"system_id"`
	Dofs     map[string]any `json:"dofs"`
}

type SPCCluster struct {
	ID                    int                  `json:"id"`
	SPCIDs                string               `json:"spc_ids"`
	SubcaseID2SummedForce map[string][]float64 `json:"subcase_id2summed_forces"`
}

type MPC struct {
	ID                     int                             `json:"id"`
	Config                 string                          `json:"config,omitempty"`
	MasterNode             int                             `json:"master_node"`
	Nodes                  string                          `json:"nodes"`
	PartID2Nodes           map[string][]int                `json:"part_id2nodes"`
	SubcaseID2PartID2Force map[string]map[string][]float64 `json:"subcase_id2part_id2forces"`
}

type Subcase struct {
	ID              int                  `json:"id"`
	Time            float64              `json:"time"`
	NodeID2Forces   map[string][]float64 `json:"node_id2forces"`
	NodeID2SPCForce map[string][]float64 `json:"node_id2spcforces"`
}

// NodeForces returns the nodal force vector, zero when the subcase or entry is missing.
func (s *Subcase) NodeForces(nodeID int) Vector6 {
	if s == nil {
		return Vector6{}
	}
	return Vector6FromSlice(s.NodeID2Forces[strconv.Itoa(nodeID)])
}

// NodeSPCForces returns the SPC reaction at a node, zero when missing.
func (s *Subcase) NodeSPCForces(nodeID int) Vector6 {
	if s == nil {
		return Vector6{}
	}
	return Vector6FromSlice(s.NodeID2SPCForce[strconv.Itoa(nodeID)])
}

func (c SPCCluster) SummedForces(subcaseID int) Vector6 {
	return Vector6FromSlice(c.SubcaseID2SummedForce[strconv.Itoa(subcaseID)])
}

func (c SPCCluster) SPCNodeIDs() []string {
	return splitIDs(c.SPCIDs)
}

func (m MPC) NodeIDs() []string {
	return splitIDs(m.Nodes)
}

func (m MPC) PartForces(subcaseID int, partID string) Vector3 {
	parts := m.SubcaseID2PartID2Force[strconv.Itoa(subcaseID)]
	if parts == nil {
		return Vector3{}
	}
	return Vector3FromSlice(parts[partID])
}

// PartIDs returns the part ids of the MPC in numeric order, non-numeric ids last.
func (m MPC) PartIDs() []string {
	ids := make([]string, 0, len(m.PartID2Nodes))
	for id := range m.PartID2Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (m MPC) PartNodeIDs(partID string) []string {
	nodes := m.PartID2Nodes[partID]
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, strconv.Itoa(n))
	}
	return out
}

func splitIDs(joined string) []string {
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
