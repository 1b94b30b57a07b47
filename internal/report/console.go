package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"inboxcleaner/internal/model"
)

var rule = strings.Repeat("=", 60)

// WriteSummary prints the scan counters.
func WriteSummary(w io.Writer, stats model.ScanStats, candidates int) {
	fmt.Fprintf(w, "\n%s\nSCAN RESULTS\n%s\n", rule, rule)
	fmt.Fprintf(w, "Emails scanned: %s\n", humanize.Comma(int64(stats.Scanned)))
	fmt.Fprintf(w, "Unsubscribe links found: %s\n", humanize.Comma(int64(stats.LinksFound)))
	fmt.Fprintf(w, "Unsubscribe emails found: %s\n", humanize.Comma(int64(stats.EmailsFound)))
	fmt.Fprintf(w, "Total candidates: %s\n", humanize.Comma(int64(candidates)))
	if stats.ActionsTaken > 0 {
		fmt.Fprintf(w, "Actions taken: %s\n", humanize.Comma(int64(stats.ActionsTaken)))
	}
	if stats.Errors > 0 {
		fmt.Fprintf(w, "Errors: %s\n", humanize.Comma(int64(stats.Errors)))
	}
}

// WriteListing prints the candidates with long fields shortened.
func WriteListing(w io.Writer, candidates []model.Candidate) {
	if len(candidates) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\nUNSUBSCRIBE CANDIDATES\n%s\n\n", rule, rule)
	for i, c := range candidates {
		fmt.Fprintf(w, "%d. %s\n", i+1, Truncate(c.Sender, 50))
		fmt.Fprintf(w, "   Subject: %s\n", Truncate(c.Subject, 60))
		if c.Unsubscribe.HasURL() {
			fmt.Fprintf(w, "   Unsubscribe URL: %s\n", Truncate(c.Unsubscribe.URL, 80))
		}
		if c.Unsubscribe.HasEmail() {
			fmt.Fprintf(w, "   Unsubscribe Email: %s\n", c.Unsubscribe.Email)
		}
		fmt.Fprintln(w)
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
