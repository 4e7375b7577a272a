package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/daryltucker/cache-bench/internal/model"
)

// ReportRow is one sequential run in the consolidated report. Summary is nil
// when the run produced no data or failed.
type ReportRow struct {
	Name    string
	Kind    model.Kind
	Account string
	Summary *model.RunSummary
	Err     error
}

// WriteReport prints every row side by side. Rows without a summary show
// "no data" or the failure instead of numbers.
func WriteReport(w io.Writer, rows []ReportRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Test\tKind\tAccount\tAverage Latency(ms)\tAverage RU\tOps")
	for _, r := range rows {
		switch {
		case r.Err != nil:
			fmt.Fprintf(tw, "%s\t%s\t%s\tfailed\tfailed\t-\n", r.Name, r.Kind, r.Account)
		case r.Summary == nil:
			fmt.Fprintf(tw, "%s\t%s\t%s\tno data\tno data\t0\n", r.Name, r.Kind, r.Account)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
				r.Name, r.Kind, r.Account, r.Summary.LatencyString(), r.Summary.CostString(), r.Summary.Operations)
		}
	}
	return tw.Flush()
}
