package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/harekrishnarai/flowtaint/pkg/results"
)

func TestCalculateSummary(t *testing.T) {
	findings := []results.Result{
		pwnFinding(t, results.High),
		pwnFinding(t, results.Medium),
		injectionFinding(t),
	}

	summary := CalculateSummary(findings)
	if summary.High != 2 || summary.Medium != 1 || summary.Low != 0 {
		t.Errorf("unexpected confidence counts: %+v", summary)
	}
	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if summary.ByIssue[results.PwnRequest] != 2 || summary.ByIssue[results.ActionsInjection] != 1 {
		t.Errorf("unexpected issue counts: %v", summary.ByIssue)
	}
}

func TestSortFindings(t *testing.T) {
	findings := []results.Result{
		pwnFinding(t, results.Low),
		pwnFinding(t, results.High),
		injectionFinding(t),
	}

	sorted := SortFindings(findings)
	if sorted[0].IssueType() != results.ActionsInjection {
		t.Errorf("expected ACTIONS_INJECTION first among HIGH findings, got %s", sorted[0].IssueType())
	}
	if sorted[2].Confidence() != results.Low {
		t.Errorf("expected LOW finding last, got %s", sorted[2].Confidence())
	}
	if findings[0].Confidence() != results.Low {
		t.Error("SortFindings must not reorder its input")
	}
}

func TestJSONReport(t *testing.T) {
	var buf bytes.Buffer
	g := NewGenerator(testScanResult(t), "json", false, "").WithWriter(&buf)
	if err := g.Generate(); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var doc struct {
		Tool    string `json:"tool"`
		Summary struct {
			Total int `json:"total"`
		} `json:"summary"`
		Repositories []struct {
			Repository string                   `json:"repository"`
			Findings   []map[string]interface{} `json:"findings"`
		} `json:"repositories"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	if doc.Tool != "flowtaint" {
		t.Errorf("expected tool flowtaint, got %q", doc.Tool)
	}
	if doc.Summary.Total != 2 {
		t.Errorf("expected summary total 2, got %d", doc.Summary.Total)
	}
	if len(doc.Repositories) != 1 || len(doc.Repositories[0].Findings) != 2 {
		t.Fatalf("expected one repository with two findings")
	}
	for _, f := range doc.Repositories[0].Findings {
		if _, ok := f["attack_complexity"]; !ok {
			t.Errorf("finding missing attack_complexity: %v", f)
		}
		if f["repository_name"] != "octo/repo" {
			t.Errorf("unexpected repository_name %v", f["repository_name"])
		}
	}
}

func TestCLIReport(t *testing.T) {
	var buf bytes.Buffer
	g := NewGenerator(testScanResult(t), "cli", true, "").WithWriter(&buf)
	if err := g.Generate(); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"FLOWTAINT SCAN RESULTS", "PWN_REQUEST", "ACTIONS_INJECTION", "npm install", "github.event.comment.body", "Path:"} {
		if !strings.Contains(out, want) {
			t.Errorf("CLI report missing %q", want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("expected no ANSI escapes when writing to a buffer")
	}
}

func TestCLIReportNoFindings(t *testing.T) {
	var buf bytes.Buffer
	result := ScanResult{Repositories: []RepositoryReport{{Repository: "octo/empty", Error: "boom"}}}
	if err := NewGenerator(result, "cli", false, "").WithWriter(&buf).Generate(); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(buf.String(), "NO TAINT FLOWS FOUND") {
		t.Error("expected empty result banner")
	}
	if !strings.Contains(buf.String(), "octo/empty: boom") {
		t.Error("expected repository failure line")
	}
}

func TestMarkdownReport(t *testing.T) {
	var buf bytes.Buffer
	if err := NewGenerator(testScanResult(t), "markdown", true, "").WithWriter(&buf).Generate(); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "# Flowtaint Scan Report") {
		t.Error("expected markdown title")
	}
	if !strings.Contains(out, "| HIGH | 2 |") {
		t.Errorf("expected summary row for HIGH findings:\n%s", out)
	}
	if !strings.Contains(out, "`.github/workflows/pr.yml`") {
		t.Error("expected initial workflow path in heading")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if err := NewGenerator(ScanResult{}, "xml", false, "").WithWriter(&bytes.Buffer{}).Generate(); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestCreateBar(t *testing.T) {
	if got := createBar(0, 0, "█", 20); got != "" {
		t.Errorf("expected empty bar, got %q", got)
	}
	if got := createBar(1, 100, "█", 20); got != "█" {
		t.Errorf("expected minimum bar of one, got %q", got)
	}
	if got := createBar(5, 10, "#", 20); got != strings.Repeat("#", 10) {
		t.Errorf("expected half bar, got %q", got)
	}
}
