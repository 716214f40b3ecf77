package report

import (
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/capsule/internal/model"
)

// Writer outputs a sync report.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *model.SyncReport) (int, error)
}

// MultiWriter writes the same report to several Writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to every writer and stops on the first error.
func (m *MultiWriter) Write(report *model.SyncReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter holds the output destination shared by the writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// label turns an identifier such as "connection refused" or "to_fetch"
// into a heading.
func label(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// status summarises how the sync ended.
func status(report *model.SyncReport) string {
	switch {
	case report.Cancelled:
		return "Cancelled (partial results)"
	case report.ErrorMessage != "":
		return "Failed: " + report.ErrorMessage
	default:
		return "Complete"
	}
}

// truncate shortens s to maxLen runes with an ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
