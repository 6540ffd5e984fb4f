package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ForceView/internal/auth"
	"ForceView/internal/clipboard"
	"ForceView/internal/filter"
	"ForceView/internal/run"
	"ForceView/internal/upload"
)

var (
	runFem      string
	runMpcf     string
	runSpcf     string
	runMeshOnly bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Upload input files to the backend in 1 MiB chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := reportingContext(cmd.Context(), cmd.ErrOrStderr())
		for _, path := range args {
			if err := uploadFile(ctx, cmd.OutOrStdout(), path); err != nil {
				return err
			}
		}
		return nil
	},
}

func uploadFile(ctx context.Context, out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	run.New(client, nil, logger).Disconnect(ctx)
	res, err := upload.New(client).Upload(ctx, filepath.Base(path), f, info.Size(), func(sent, total int64) {
		fmt.Fprintf(out, "\r%s: %s", filepath.Base(path), upload.ProgressText(sent, total))
	})
	if err != nil {
		fmt.Fprintln(out)
		return err
	}
	if res.Chunks == 0 {
		fmt.Fprintf(out, "%s: empty file, nothing sent", res.Filename)
	}
	fmt.Fprintf(out, " (%d chunks)\n", res.Chunks)
	return nil
}

// lineProgress prints each simulated step on its own line.
type lineProgress struct{ w io.Writer }

func (p lineProgress) Step(i, n int)   { fmt.Fprintf(p.w, "step %d of %d\n", i, n) }
func (p lineProgress) Fail(msg string) { fmt.Fprintln(p.w, msg) }
func (p lineProgress) Done(msg string) { fmt.Fprintln(p.w, "Success: "+msg) }

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the force extractor on previously uploaded files",
	Long: `Run the force extractor on files already uploaded to the backend.

A mesh (--fem) is required. Without --mpcf and --spcf the run is refused
unless --mesh-only is given.

Examples:
  forcectl run --fem model.fem --mpcf model.mpcf --spcf model.spcf
  forcectl run --fem model.fem --mesh-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := reportingContext(cmd.Context(), cmd.ErrOrStderr())
		c := run.New(client, nil, logger)
		c.Steps = cfg.RunSteps
		c.Confirm = func(run.Request) bool { return runMeshOnly }

		out, err := c.Run(ctx, run.Request{Fem: runFem, Mpcf: runMpcf, Spcf: runSpcf}, lineProgress{w: cmd.OutOrStdout()})
		if alert := run.Alert(err); alert != "" {
			return errors.New(alert)
		}
		for _, w := range out.Warnings {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
		}
		return err
	},
}

var importCmd = &cobra.Command{
	Use:   "import-db FILE",
	Short: "Upload a result database and import it into the backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := reportingContext(cmd.Context(), cmd.ErrOrStderr())
		if err := uploadFile(ctx, cmd.OutOrStdout(), args[0]); err != nil {
			return err
		}
		out, err := run.New(client, nil, logger).ImportDB(ctx, filepath.Base(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Success: "+out.Message)
		return nil
	},
}

var outputFolderCmd = &cobra.Command{
	Use:   "output-folder",
	Short: "Print the backend output folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := client.OutputFolder(reportingContext(cmd.Context(), cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), folder)
		return nil
	},
}

var copyCmd = &cobra.Command{
	Use:       "copy spccluster|mpc ID",
	Short:     "Copy the node ids of an SPC cluster or MPC to the clipboard",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"spccluster", "mpc"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := reportingContext(cmd.Context(), cmd.ErrOrStderr())
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid id %q", args[1])
		}
		btn, err := copyButton(ctx, args[0], id)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := btn.Click(clipboard.System, now); err != nil {
			return fmt.Errorf("clipboard: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", btn.Current(now), btn.Text)
		return nil
	},
}

func copyButton(ctx context.Context, kind string, id int) (*clipboard.Button, error) {
	switch kind {
	case "spccluster":
		clusters, err := client.SPCClusters(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range clusters {
			if c.ID == id {
				return clipboard.NewButton(filter.Join(c.SPCNodeIDs()), "Copy SPC Nodes", ""), nil
			}
		}
		return nil, fmt.Errorf("spc cluster %d not found", id)
	case "mpc":
		mpcs, err := client.MPCs(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range mpcs {
			if m.ID == id {
				return clipboard.NewButton(filter.Join(m.NodeIDs()), "Copy Nodes", ""), nil
			}
		}
		return nil, fmt.Errorf("mpc %d not found", id)
	}
	return nil, fmt.Errorf("unknown kind %q (want spccluster or mpc)", kind)
}

var hashPasswordCmd = &cobra.Command{
	Use:              "hash-password [PASSWORD]",
	Short:            "Print a bcrypt hash for FORCEVIEW_OPERATOR_PASSWORD_HASH",
	Args:             cobra.MaximumNArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	RunE: func(cmd *cobra.Command, args []string) error {
		password := ""
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return errors.New("empty password")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd, runCmd, importCmd, outputFolderCmd, copyCmd, hashPasswordCmd)

	runCmd.Flags().StringVar(&runFem, "fem", "", "Uploaded mesh file name (.fem)")
	runCmd.Flags().StringVar(&runMpcf, "mpcf", "", "Uploaded MPC force file name (.mpcf)")
	runCmd.Flags().StringVar(&runSpcf, "spcf", "", "Uploaded SPC force file name (.spcf)")
	runCmd.Flags().BoolVar(&runMeshOnly, "mesh-only", false, "Run even when no force file is given")
}
