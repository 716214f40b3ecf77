package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/capsule/internal/model"
)

// SimpleWriter prints the plain text summary shown at the end of a sync.
type SimpleWriter struct {
	baseWriter

	// verbose lists every failed URL instead of only the counts.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists failed URLs.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary.
func (w *SimpleWriter) Write(report *model.SyncReport) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "Sync %s in %s\n", strings.ToLower(status(report)), report.Duration().Round(time.Second))
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "  Fetched:      %d\n", report.Fetched)
	fmt.Fprintf(&sb, "  Newly cached: %d\n", report.CachedNew)
	fmt.Fprintf(&sb, "  Skipped:      %d\n", report.Skipped)
	fmt.Fprintf(&sb, "  Added to tour: %d\n", len(report.Toured))
	fmt.Fprintf(&sb, "  Errors:       %d\n", report.ErrorCount())

	for _, kind := range report.ErrorKinds() {
		fmt.Fprintf(&sb, "    %-22s %d\n", label(kind)+":", report.Errors[kind])
	}

	if len(report.Phases) > 0 {
		sb.WriteString("\nPhases:\n")
		for _, p := range report.Phases {
			fmt.Fprintf(&sb, "  %-14s fetched %d, failed %d", label(p.Name), p.Fetched, p.Failed)
			if len(p.Lists) > 0 {
				fmt.Fprintf(&sb, " (%s)", strings.Join(p.Lists, ", "))
			}
			sb.WriteString("\n")
		}
	}

	if w.verbose && len(report.Failures) > 0 {
		sb.WriteString("\nFailures:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(&sb, "  [%s] %s: %s\n", f.Kind, f.URL, f.Message)
		}
	}

	return io.WriteString(w.output, sb.String())
}
