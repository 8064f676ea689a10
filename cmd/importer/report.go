package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"tsmximport/internal/multitable"
)

// printReport writes one line per table plus a totals line.
func printReport(w io.Writer, rep multitable.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tCANDIDATES\tDROPPED\tDUPLICATES\tWRITTEN\tSKIPPED\tSTATUS")
	for _, t := range rep.Tables {
		status := "ok"
		if t.Err != nil {
			status = "failed: " + t.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			t.Table, t.Candidates, t.Dropped, t.Duplicates, t.Written, t.Skipped, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "rows=%d duration=%s\n", rep.Rows, rep.Duration.Round(1e6))
	return err
}
