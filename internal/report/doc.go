// Package report writes sync reports.
//
// Three formats are available:
//   - SimpleWriter: the plain text summary printed after a sync
//   - MarkdownWriter: a Markdown document for --report files
//   - JSONWriter: structured output for scripts
//
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
