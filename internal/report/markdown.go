package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/capsule/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, for the file given to
// sync --report.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report.
func (w *MarkdownWriter) Write(report *model.SyncReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writePhases(md, report)
	w.writeErrors(md, report)
	w.writeTour(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.SyncReport) {
	md.H1("Capsule Sync Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Second).String()},
			{"Depth", strconv.Itoa(report.Depth)},
			{"Cache Validity", validityText(report.CacheValidity)},
			{"Fetched", strconv.Itoa(report.Fetched)},
			{"Newly Cached", strconv.Itoa(report.CachedNew)},
			{"Skipped", strconv.Itoa(report.Skipped)},
			{"Status", status(report)},
		},
	})
	md.PlainText("")

	switch {
	case report.Cancelled:
		md.Warningf("The sync was interrupted. Lists after the interruption were not refreshed.")
	case report.ErrorMessage != "":
		md.Cautionf("A sync phase failed: %s", report.ErrorMessage)
	case report.ErrorCount() == 0:
		md.Tip("Every resource was fetched without error.")
	default:
		md.Importantf("%d resource(s) could not be fetched. Their previous cache was kept.", report.ErrorCount())
	}
	md.PlainText("")
}

func validityText(d time.Duration) string {
	if d == 0 {
		return "uncached only"
	}
	return d.String()
}

func (w *MarkdownWriter) writePhases(md *markdown.Markdown, report *model.SyncReport) {
	md.H2("Phases")
	md.PlainText("")
	if len(report.Phases) == 0 {
		md.PlainText("No phase was run.")
		md.PlainText("")
		return
	}
	rows := make([][]string, len(report.Phases))
	for i, p := range report.Phases {
		lists := "-"
		if len(p.Lists) > 0 {
			lists = "`" + strings.Join(p.Lists, ", ") + "`"
		}
		rows[i] = []string{label(p.Name), lists, strconv.Itoa(p.Fetched), strconv.Itoa(p.Failed)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Phase", "Lists", "Fetched", "Failed"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, report *model.SyncReport) {
	md.H2("Errors")
	md.PlainText("")
	kinds := report.ErrorKinds()
	if len(kinds) == 0 {
		md.PlainText("No errors.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(kinds)+1)
	chart := piechart.NewPieChart(io.Discard,
		piechart.WithTitle("Errors by kind"),
		piechart.WithShowData(true),
	)
	for _, kind := range kinds {
		n := report.Errors[kind]
		rows = append(rows, []string{label(kind), strconv.Itoa(n)})
		chart.LabelAndIntValue(label(kind), uint64(n)) //nolint:gosec // counts are never negative
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(report.ErrorCount()) + "**"})
	md.Table(markdown.TableSet{Header: []string{"Kind", "Count"}, Rows: rows})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")

	failures := make([][]string, len(report.Failures))
	for i, f := range report.Failures {
		failures[i] = []string{truncate(f.URL, 60), f.Kind, truncate(f.Message, 60)}
	}
	md.H3("Failed Resources")
	md.PlainText("")
	md.Table(markdown.TableSet{Header: []string{"URL", "Kind", "Message"}, Rows: failures})
	md.PlainText("")
}

func (w *MarkdownWriter) writeTour(md *markdown.Markdown, report *model.SyncReport) {
	md.H2("Added to Tour")
	md.PlainText("")
	if len(report.Toured) == 0 {
		md.PlainText("Nothing new.")
		md.PlainText("")
		return
	}
	md.BulletList(report.Toured...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by capsule*")
}
