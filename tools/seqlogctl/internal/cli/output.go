package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/md-rashed-zaman/seqlog/libs/subscription"
)

func writeStatus(w io.Writer, format string, st subscription.Status) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "subscription\t%s\n", st.SubscriptionName)
	fmt.Fprintf(tw, "paused\t%t\n", st.Paused)
	fmt.Fprintf(tw, "busy\t%t\n", st.Busy)
	fmt.Fprintf(tw, "greedy\t%t\n", st.Greedy)
	fmt.Fprintf(tw, "failures\t%d\n", st.Failures)
	fmt.Fprintf(tw, "backoff\t%d\n", st.BackOff)
	fmt.Fprintf(tw, "offset\t%d\n", st.CurrentOffset)
	return tw.Flush()
}

func writeMessage(w io.Writer, format, msg string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(map[string]string{"result": msg})
	}
	_, err := fmt.Fprintln(w, msg)
	return err
}
