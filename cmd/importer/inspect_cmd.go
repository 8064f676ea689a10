package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tsmximport/internal/multitable"
	"tsmximport/internal/source"
)

func newInspectCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Read a spreadsheet and report what an import would write, without a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(f)
			if err != nil {
				return withCode(2, err)
			}
			runner := a.deps.NewRunner(nil)
			rs, err := runner.ReadSource(cmd.Context(), args[0], source.Options{
				Sheet: cfg.Import.Sheet,
				S3: source.S3Options{
					Region:    cfg.S3.Region,
					Endpoint:  cfg.S3.Endpoint,
					PathStyle: cfg.S3.PathStyle,
				},
			})
			if err != nil {
				return withCode(1, err)
			}
			return printInspection(a, multitable.Inspect(rs))
		},
	}
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "workbook sheet (default: first sheet)")
	return cmd
}

func printInspection(a *app, in multitable.Inspection) error {
	fmt.Fprintf(a.stdout, "rows=%d\n", in.Rows)
	fmt.Fprintf(a.stdout, "mapped=%s\n", strings.Join(in.Mapped, ","))
	if len(in.Unmapped) > 0 {
		fmt.Fprintf(a.stdout, "unmapped=%q\n", in.Unmapped)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tCANDIDATES\tDROPPED\tDUPLICATES")
	for _, t := range in.Tables {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", t.Table, t.Candidates, t.Dropped, t.Duplicates)
	}
	return withCode(1, tw.Flush())
}
