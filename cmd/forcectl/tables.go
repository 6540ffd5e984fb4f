package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ForceView/internal/subcase"
	"ForceView/internal/table"
)

var (
	listPage    int
	listSort    string
	listDesc    bool
	listFilter  string
	listSubcase int
)

func printView(w io.Writer, v table.View) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	labels := make([]string, 0, len(v.Columns))
	for _, c := range v.Columns {
		label := c.Label
		if c.Sortable {
			label += " " + v.State.Sort.Icon(c.Key)
		}
		labels = append(labels, label)
	}
	fmt.Fprintln(tw, strings.Join(labels, "\t")+"\t")
	if v.Empty {
		fmt.Fprintln(tw, v.EmptyText+"\t")
	}
	for _, r := range v.Rows {
		cells := make([]string, 0, len(r.Cells))
		for _, c := range r.Cells {
			cells = append(cells, c.Text)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()

	footer := fmt.Sprintf("Page %d of %d", v.State.Page, max(v.State.TotalPages, 1))
	if v.State.SubcaseID != 0 {
		footer += fmt.Sprintf("  subcase %d", v.State.SubcaseID)
	}
	if v.State.Filtered() {
		footer += "  filter: " + v.State.FilterText()
	}
	fmt.Fprintln(w, footer)
}

// listState turns the list flags into a table state. An empty sort key keeps
// the direction and lets the table pick its default column.
func listState(sortKey string, desc bool, rawFilter string, page, subcaseID int) table.State {
	st := table.NewState(sortKey)
	st.SubcaseID = subcaseID
	st.ApplyFilter(rawFilter)
	st.Page = max(page, 1)
	if desc {
		st.Sort.Direction = table.Descending
	}
	return st
}

func listCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := reportingContext(cmd.Context(), cmd.ErrOrStderr())
			t, err := newTable(name, subcase.NewCache(client))
			if err != nil {
				return err
			}
			t.Restore(listState(listSort, listDesc, listFilter, listPage, listSubcase))
			v, err := t.Refresh(ctx)
			if err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

var browseCmd = &cobra.Command{
	Use:   "browse nodes|spcs|spcclusters|mpcs",
	Short: "Page through a table interactively",
	Long: `Page through a table interactively. Commands:
  n          next page
  p          previous page
  s COL      sort by COL, again to reverse
  f IDS      filter by ids, e.g. f 1, 5-9
  esc        clear the filter
  c SUBCASE  select a subcase
  r          refresh the subcase list
  q          quit`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"nodes", "spcs", "spcclusters", "mpcs"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := reportingContext(cmd.Context(), cmd.ErrOrStderr())
		cache := subcase.NewCache(client)
		t, err := newTable(args[0], cache)
		if err != nil {
			return err
		}
		return browse(ctx, t, cache, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// browse runs the line REPL until q or end of input. Failed commands keep the
// previous page and are reported through ctx.
func browse(ctx context.Context, t table.Table, cache *subcase.Cache, in io.Reader, out io.Writer) error {
	v, err := t.Refresh(ctx)
	if err == nil {
		printView(out, v)
	}
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "":
			continue
		case "q", "quit":
			return nil
		case "n":
			v, err = t.Next(ctx)
		case "p":
			v, err = t.Prev(ctx)
		case "s":
			v, err = t.ToggleSort(ctx, arg)
		case "f":
			v, _, err = t.HandleKey(ctx, table.KeyEnter, arg)
		case "esc":
			v, _, err = t.HandleKey(ctx, table.KeyEscape, "")
		case "c":
			id, convErr := strconv.Atoi(arg)
			if convErr != nil {
				fmt.Fprintf(out, "invalid subcase %q\n", arg)
				continue
			}
			v, err = t.SelectSubcase(ctx, id)
		case "r":
			if _, err := cache.Get(ctx, true); err != nil {
				continue
			}
			v, err = t.Load(ctx)
		default:
			fmt.Fprintf(out, "unknown command %q\n", cmd)
			continue
		}
		if err != nil {
			continue
		}
		printView(out, v)
	}
}

func init() {
	for _, c := range []*cobra.Command{
		listCommand("nodes", "List nodes with force magnitudes"),
		listCommand("spcs", "List single-point constraints with reaction forces"),
		listCommand("spcclusters", "List SPC clusters with summed forces"),
		listCommand("mpcs", "List MPCs with per-part forces"),
	} {
		c.Flags().IntVar(&listPage, "page", 1, "Page number")
		c.Flags().StringVar(&listSort, "sort", "", "Sort column key")
		c.Flags().BoolVar(&listDesc, "desc", false, "Sort descending")
		c.Flags().StringVar(&listFilter, "filter", "", "Comma-separated ids or ranges, e.g. 1, 5-9")
		c.Flags().IntVar(&listSubcase, "subcase", 0, "Subcase id (default first)")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(browseCmd)
}
