package table

import (
	"context"
	"fmt"
	"strconv"

	"ForceView/internal/backend"
	"ForceView/internal/clipboard"
	"ForceView/internal/filter"
	"ForceView/internal/model"
)

const (
	coordPrecision = 3
	notAvailable   = "n/a"
)

type NodeAPI interface {
	AllNodes(ctx context.Context) ([]model.Node, error)
	FilterNodes(ctx context.Context, ids []string) ([]model.Node, error)
	Nodes(ctx context.Context, q backend.PageQuery) ([]model.Node, error)
}

type SPCAPI interface {
	AllSPCs(ctx context.Context, ids []string) ([]model.SPC, error)
	SPCs(ctx context.Context, q backend.PageQuery) ([]model.SPC, error)
}

func pageQuery(q Query) backend.PageQuery {
	pq := backend.PageQuery{
		Page:          q.Page,
		SortColumn:    q.Sort.Column,
		SortDirection: int(q.Sort.Direction.normalize()),
		IDs:           q.IDs,
	}
	if q.SubcaseSort {
		pq.SubcaseID = q.SubcaseID
	}
	return pq
}

type nodeSource struct{ api NodeAPI }

func (s nodeSource) Count(ctx context.Context, ids []string) (int, error) {
	var (
		nodes []model.Node
		err   error
	)
	if len(ids) == 0 {
		nodes, err = s.api.AllNodes(ctx)
	} else {
		nodes, err = s.api.FilterNodes(ctx, ids)
	}
	return len(nodes), err
}

func (s nodeSource) Fetch(ctx context.Context, q Query) ([]model.Node, error) {
	return s.api.Nodes(ctx, pageQuery(q))
}

type spcSource struct{ api SPCAPI }

func (s spcSource) Count(ctx context.Context, ids []string) (int, error) {
	spcs, err := s.api.AllSPCs(ctx, ids)
	return len(spcs), err
}

func (s spcSource) Fetch(ctx context.Context, q Query) ([]model.SPC, error) {
	return s.api.SPCs(ctx, pageQuery(q))
}

func forceColumns() []Column {
	return []Column{
		{Key: "fx", Label: "Fx"},
		{Key: "fy", Label: "Fy"},
		{Key: "fz", Label: "Fz"},
		{Key: "fabs", Label: "|F|"},
		{Key: "mx", Label: "Mx"},
		{Key: "my", Label: "My"},
		{Key: "mz", Label: "Mz"},
		{Key: "mabs", Label: "|M|"},
	}
}

func forceCells(v model.Vector6, precision int) []Cell {
	f := func(x float64) Cell { return Cell{Text: model.FormatFloat(x, precision)} }
	return []Cell{f(v[0]), f(v[1]), f(v[2]), f(v.Linear()), f(v[3]), f(v[4]), f(v[5]), f(v.Moment())}
}

func intCell(v int) Cell { return Cell{Text: strconv.Itoa(v)} }

func NodeEntity(api NodeAPI) Entity[model.Node] {
	return Entity[model.Node]{
		Name:      "nodes",
		Title:     "Nodes",
		EmptyText: "No nodes found",
		Columns: []Column{
			{Key: "id", Label: "ID", Sortable: true},
			{Key: "coord_x", Label: "X", Sortable: true},
			{Key: "coord_y", Label: "Y", Sortable: true},
			{Key: "coord_z", Label: "Z", Sortable: true},
			{Key: "fabs", Label: "|F|", Sortable: true, NeedsSubcase: true},
			{Key: "mabs", Label: "|M|", Sortable: true, NeedsSubcase: true},
		},
		DefaultSort: "id",
		Precision:   2,
		Source:      nodeSource{api: api},
		Render: func(n model.Node, sc *model.Subcase, precision int) []Row {
			forces := sc.NodeForces(n.ID)
			return []Row{{Cells: []Cell{
				intCell(n.ID),
				{Text: model.FormatFloat(n.CoordX, coordPrecision)},
				{Text: model.FormatFloat(n.CoordY, coordPrecision)},
				{Text: model.FormatFloat(n.CoordZ, coordPrecision)},
				{Text: model.FormatFloat(forces.Linear(), precision)},
				{Text: model.FormatFloat(forces.Moment(), precision)},
			}}}
		},
	}
}

// DofText renders a constrained DOF value, n/a when the DOF is absent.
func DofText(dofs map[string]any, dof int) string {
	v, ok := dofs[strconv.Itoa(dof)]
	if !ok || v == nil {
		return notAvailable
	}
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		if x == "" {
			return notAvailable
		}
		return x
	}
	return fmt.Sprint(v)
}

func SPCEntity(api SPCAPI) Entity[model.SPC] {
	cols := []Column{
		{Key: "node_id", Label: "Node", Sortable: true},
		{Key: "system_id", Label: "System", Sortable: true},
	}
	for dof := 1; dof <= 6; dof++ {
		cols = append(cols, Column{Key: "dof" + strconv.Itoa(dof), Label: "DOF" + strconv.Itoa(dof)})
	}
	cols = append(cols, forceColumns()...)

	return Entity[model.SPC]{
		Name:        "spcs",
		Title:       "SPCs",
		EmptyText:   "No spcs found",
		Columns:     cols,
		DefaultSort: "node_id",
		Precision:   3,
		Source:      spcSource{api: api},
		Render: func(s model.SPC, sc *model.Subcase, precision int) []Row {
			cells := []Cell{intCell(s.NodeID), intCell(s.SystemID)}
			for dof := 1; dof <= 6; dof++ {
				cells = append(cells, Cell{Text: DofText(s.Dofs, dof)})
			}
			cells = append(cells, forceCells(sc.NodeSPCForces(s.NodeID), precision)...)
			return []Row{{Cells: cells}}
		},
	}
}

func subcaseID(sc *model.Subcase) int {
	if sc == nil {
		return 0
	}
	return sc.ID
}

// SPCClusterSource keeps every cluster in memory; sorting happens locally.
func SPCClusterSource(load func(ctx context.Context) ([]model.SPCCluster, error)) *LocalSource[model.SPCCluster] {
	return NewLocalSource(load,
		func(c model.SPCCluster) int { return c.ID },
		map[string]SortKey[model.SPCCluster]{
			"id": func(c model.SPCCluster, _ *model.Subcase) float64 { return float64(c.ID) },
			"fabs": func(c model.SPCCluster, sc *model.Subcase) float64 {
				if sc == nil {
					return 0
				}
				return c.SummedForces(sc.ID).Linear()
			},
			"mabs": func(c model.SPCCluster, sc *model.Subcase) float64 {
				if sc == nil {
					return 0
				}
				return c.SummedForces(sc.ID).Moment()
			},
		})
}

func SPCClusterEntity(src Source[model.SPCCluster]) Entity[model.SPCCluster] {
	cols := []Column{
		{Key: "id", Label: "ID", Sortable: true},
		{Key: "spc_ids", Label: "SPC Nodes"},
	}
	for _, c := range forceColumns() {
		if c.Key == "fabs" || c.Key == "mabs" {
			c.Sortable = true
			c.NeedsSubcase = true
		}
		cols = append(cols, c)
	}
	return Entity[model.SPCCluster]{
		Name:        "spcclusters",
		Title:       "SPC Clusters",
		EmptyText:   "No spc clusters found",
		Columns:     cols,
		DefaultSort: "id",
		Precision:   3,
		Source:      src,
		Render: func(c model.SPCCluster, sc *model.Subcase, precision int) []Row {
			cells := []Cell{
				intCell(c.ID),
				{Text: filter.Join(c.SPCNodeIDs()), Copy: clipboard.NewButton(filter.Join(c.SPCNodeIDs()), "Copy SPC Nodes", "")},
			}
			var forces model.Vector6
			if sc != nil {
				forces = c.SummedForces(sc.ID)
			}
			cells = append(cells, forceCells(forces, precision)...)
			return []Row{{Cells: cells}}
		},
	}
}

// MPCPart is one displayed MPC row: a single part, or Part "" for an MPC
// without parts. Pages count these rows, not MPCs.
type MPCPart struct {
	MPC  model.MPC
	Part string
}

// SplitParts flattens mpcs into part rows in MPC order.
func SplitParts(mpcs []model.MPC) []MPCPart {
	out := make([]MPCPart, 0, len(mpcs))
	for _, m := range mpcs {
		parts := m.PartIDs()
		if len(parts) == 0 {
			out = append(out, MPCPart{MPC: m})
			continue
		}
		for _, p := range parts {
			out = append(out, MPCPart{MPC: m, Part: p})
		}
	}
	return out
}

// MPCSource filters and sorts by MPC; the stable sort keeps the parts of one
// MPC together and in part order.
func MPCSource(load func(ctx context.Context) ([]model.MPC, error)) *LocalSource[MPCPart] {
	return NewLocalSource(func(ctx context.Context) ([]MPCPart, error) {
		mpcs, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return SplitParts(mpcs), nil
	},
		func(p MPCPart) int { return p.MPC.ID },
		map[string]SortKey[MPCPart]{
			"id":          func(p MPCPart, _ *model.Subcase) float64 { return float64(p.MPC.ID) },
			"master_node": func(p MPCPart, _ *model.Subcase) float64 { return float64(p.MPC.MasterNode) },
		})
}

// MPCEntity renders an MPC part with the part's force for the active subcase.
func MPCEntity(src Source[MPCPart]) Entity[MPCPart] {
	return Entity[MPCPart]{
		Name:      "mpcs",
		Title:     "MPCs",
		EmptyText: "No mpcs found",
		Columns: []Column{
			{Key: "id", Label: "ID", Sortable: true},
			{Key: "config", Label: "Type"},
			{Key: "master_node", Label: "Master Node", Sortable: true},
			{Key: "nodes", Label: "Nodes"},
			{Key: "part_id", Label: "Part"},
			{Key: "part_nodes", Label: "Part Nodes"},
			{Key: "fx", Label: "Fx"},
			{Key: "fy", Label: "Fy"},
			{Key: "fz", Label: "Fz"},
			{Key: "fabs", Label: "|F|"},
		},
		DefaultSort: "id",
		Precision:   3,
		Source:      src,
		Render: func(p MPCPart, sc *model.Subcase, precision int) []Row {
			m := p.MPC
			nodes := filter.Join(m.NodeIDs())
			cells := []Cell{
				intCell(m.ID),
				{Text: m.Config},
				intCell(m.MasterNode),
				{Text: nodes, Copy: clipboard.NewButton(nodes, "Copy Nodes", "")},
			}
			if p.Part == "" {
				zero := model.FormatFloat(0, precision)
				cells = append(cells, Cell{Text: "-"}, Cell{Text: ""},
					Cell{Text: zero}, Cell{Text: zero}, Cell{Text: zero}, Cell{Text: zero})
				return []Row{{Cells: cells}}
			}
			f := m.PartForces(subcaseID(sc), p.Part)
			partNodes := filter.Join(m.PartNodeIDs(p.Part))
			cells = append(cells,
				Cell{Text: p.Part},
				Cell{Text: partNodes, Copy: clipboard.NewButton(partNodes, "Copy Part Nodes", "")},
				Cell{Text: model.FormatFloat(f[0], precision)},
				Cell{Text: model.FormatFloat(f[1], precision)},
				Cell{Text: model.FormatFloat(f[2], precision)},
				Cell{Text: model.FormatFloat(f.Norm(), precision)},
			)
			return []Row{{Cells: cells}}
		},
	}
}
