package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/capsule/internal/model"
	"github.com/nao1215/capsule/internal/protocol"
)

// createTestReport creates a finished report with sample data.
func createTestReport() *model.SyncReport {
	start := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	report := model.NewSyncReport(start, 1, 24*time.Hour)

	report.BeginPhase("subscriptions")
	report.NoteLists("news")
	report.RecordFetch(true)
	report.RecordTour("gemini://feeds.example/post.gmi")

	report.BeginPhase("to_fetch")
	report.NoteLists("to_fetch")
	report.RecordFetch(false)
	report.RecordFailure("gemini://dead.example/", fmt.Errorf("%w: dead.example", protocol.ErrDNS))
	report.RecordFailure("gopher://slow.example/", protocol.ErrTimeout)
	report.RecordSkip()

	report.Finish(start.Add(2 * time.Minute))
	return report
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes totals and phases", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"Sync complete in 2m0s",
			"Fetched:      2",
			"Newly cached: 1",
			"Errors:       2",
			"Dns Failure:",
			"Timeout:",
			"Subscriptions",
			"To Fetch",
			"(news)",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
		if strings.Contains(output, "gemini://dead.example/") {
			t.Error("failed URLs are only listed in verbose mode")
		}
	})

	t.Run("verbose lists failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "[dns failure] gemini://dead.example/") {
			t.Errorf("expected failure line:\n%s", buf.String())
		}
	})

	t.Run("cancelled sync", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Cancelled = true
		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "Sync cancelled (partial results)") {
			t.Errorf("expected cancelled status:\n%s", buf.String())
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("plain report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		var decoded model.SyncReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Fetched != 2 || decoded.Errors["timeout"] != 1 {
			t.Errorf("decoded = %+v", decoded)
		}
		if strings.Contains(buf.String(), "\n  ") {
			t.Error("compact output should not be indented")
		}
	})

	t.Run("versioned and indented", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithPrettyPrint(), WithVersion("v1.2.3"))
		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		var decoded JSONReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Version != "v1.2.3" || decoded.ErrorCount != 2 || decoded.DurationMS != 120000 {
			t.Errorf("decoded = %+v", decoded)
		}
		if !strings.Contains(buf.String(), "\n  \"version\"") {
			t.Errorf("expected indented output:\n%s", buf.String())
		}
	})

	t.Run("phase error is kept as a message", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Fail(errors.New("lists directory is not readable"))
		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(report); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "lists directory is not readable") {
			t.Errorf("missing error message:\n%s", buf.String())
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("full report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{
			"# Capsule Sync Report",
			"## Phases",
			"## Errors",
			"```mermaid",
			"Dns Failure",
			"### Failed Resources",
			"gemini://dead.example/",
			"## Added to Tour",
			"gemini://feeds.example/post.gmi",
			"`news`",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("clean sync", func(t *testing.T) {
		t.Parallel()

		report := model.NewSyncReport(time.Now(), 0, 0)
		report.Finish(report.StartedAt)
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "No errors.") || !strings.Contains(output, "uncached only") {
			t.Errorf("unexpected output:\n%s", output)
		}
		if strings.Contains(output, "mermaid") {
			t.Error("no chart expected without errors")
		}
	})
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	m := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))
	n, err := m.Write(createTestReport())
	if err != nil {
		t.Fatal(err)
	}
	if n != text.Len()+js.Len() {
		t.Errorf("n = %d, want %d", n, text.Len()+js.Len())
	}
	if text.Len() == 0 || js.Len() == 0 {
		t.Error("every writer should receive the report")
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"connection refused": "Connection Refused",
		"to_fetch":           "To Fetch",
		"tour":               "Tour",
	}
	for in, want := range tests {
		if got := label(in); got != want {
			t.Errorf("label(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{in: "short", maxLen: 10, want: "short"},
		{in: "gemini://example.org/long", maxLen: 12, want: "gemini://..."},
		{in: "abcdef", maxLen: 2, want: "ab"},
		{in: "żółw żółw", maxLen: 6, want: "żół..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
