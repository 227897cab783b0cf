/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


// Package report renders scan results for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harekrishnarai/flowtaint/pkg/constants"
	"github.com/harekrishnarai/flowtaint/pkg/results"
	"github.com/harekrishnarai/flowtaint/pkg/terminal"
	"github.com/olekukonko/tablewriter"
)

// RepositoryReport holds the findings of one analyzed repository
type RepositoryReport struct {
	Repository          string           `json:"repository"`
	WorkflowsCount      int              `json:"workflowsCount"`
	Findings            []results.Result `json:"-"`
	SuppressedCount     int              `json:"suppressedCount"`
	SelfHostedWorkflows []string         `json:"selfHostedWorkflows,omitempty"`
	// Error is set when the repository could not be analyzed
	Error string `json:"error,omitempty"`
}

// ScanResult represents the overall result of a scan
type ScanResult struct {
	Repositories []RepositoryReport `json:"repositories"`
	ScanTime     time.Time          `json:"scanTime"`
	Duration     time.Duration      `json:"duration"`
	Summary      ResultSummary      `json:"summary"`
}

// Findings returns every finding of every repository.
func (s ScanResult) Findings() []results.Result {
	var all []results.Result
	for _, r := range s.Repositories {
		all = append(all, r.Findings...)
	}
	return all
}

// ResultSummary counts findings by confidence and by issue type
type ResultSummary struct {
	High    int                       `json:"high"`
	Medium  int                       `json:"medium"`
	Low     int                       `json:"low"`
	Unknown int                       `json:"unknown"`
	Total   int                       `json:"total"`
	ByIssue map[results.IssueType]int `json:"byIssue"`
}

// Generator creates a formatted report from scan results
type Generator struct {
	Result   ScanResult
	Format   string
	Verbose  bool
	FilePath string
	// Out receives the report when FilePath is empty, and status lines otherwise
	Out  io.Writer
	term *terminal.Terminal
}

// NewGenerator creates a new report generator writing to stdout
func NewGenerator(result ScanResult, format string, verbose bool, filePath string) *Generator {
	return &Generator{
		Result:   result,
		Format:   format,
		Verbose:  verbose,
		FilePath: filePath,
		Out:      os.Stdout,
		term:     terminal.Default(),
	}
}

// WithWriter redirects output, detecting terminal capabilities of w
func (g *Generator) WithWriter(w io.Writer) *Generator {
	g.Out = w
	g.term = terminal.New(w)
	return g
}

// Generate creates and outputs the report in the specified format
func (g *Generator) Generate() error {
	if g.Result.Summary.Total == 0 && g.Result.Summary.ByIssue == nil {
		g.Result.Summary = CalculateSummary(g.Result.Findings())
	}

	switch strings.ToLower(g.Format) {
	case constants.OutputFormatCLI:
		return g.generateCLIReport()
	case constants.OutputFormatJSON:
		return g.generateJSONReport()
	case constants.OutputFormatMarkdown:
		return g.generateMarkdownReport()
	case constants.OutputFormatSARIF:
		return g.generateSARIFReport()
	default:
		return fmt.Errorf("unsupported report format: %s", g.Format)
	}
}

func (g *Generator) emit(kind string, data []byte) error {
	if g.FilePath != "" {
		if err := os.WriteFile(g.FilePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s report to file: %w", kind, err)
		}
		fmt.Fprintf(g.Out, "%s report written to %s\n", kind, g.FilePath)
		return nil
	}
	_, err := g.Out.Write(data)
	return err
}

var confidenceOrder = []results.Confidence{results.High, results.Medium, results.Low, results.Unknown}

// generateCLIReport prints the summary table and every finding with its path
func (g *Generator) generateCLIReport() error {
	out := g.Out
	if g.FilePath != "" {
		f, err := os.Create(g.FilePath)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	colored := g.FilePath == "" && g.term.ColorEnabled()

	style := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	titleStyle := style(color.FgHiCyan, color.Bold)
	subtitleStyle := style(color.FgCyan, color.Bold)
	infoStyle := style(color.FgBlue)
	successStyle := style(color.FgGreen, color.Bold)
	errorStyle := style(color.FgRed)
	confidenceStyles := map[results.Confidence]*color.Color{
		results.High:    style(color.FgHiRed, color.Bold),
		results.Medium:  style(color.FgHiYellow, color.Bold),
		results.Low:     style(color.FgBlue),
		results.Unknown: style(color.FgHiBlack),
	}
	rule := strings.Repeat("━", 49)

	fmt.Fprintln(out)
	titleStyle.Fprintln(out, "╔═══════════════════════════════════════════╗")
	titleStyle.Fprintln(out, "║           FLOWTAINT SCAN RESULTS          ║")
	titleStyle.Fprintln(out, "╚═══════════════════════════════════════════╝")

	fmt.Fprintln(out)
	subtitleStyle.Fprintln(out, "► SCAN INFORMATION")
	fmt.Fprintln(out, rule)
	workflows, suppressed := 0, 0
	for _, r := range g.Result.Repositories {
		workflows += r.WorkflowsCount
		suppressed += r.SuppressedCount
	}
	infoStyle.Fprintf(out, "%-20s ", "Repositories:")
	fmt.Fprintln(out, len(g.Result.Repositories))
	infoStyle.Fprintf(out, "%-20s ", "Scan Time:")
	fmt.Fprintln(out, g.Result.ScanTime.Format(time.RFC1123))
	infoStyle.Fprintf(out, "%-20s ", "Duration:")
	fmt.Fprintln(out, g.Result.Duration.Round(time.Millisecond))
	infoStyle.Fprintf(out, "%-20s ", "Workflows Analyzed:")
	fmt.Fprintln(out, workflows)
	if suppressed > 0 {
		infoStyle.Fprintf(out, "%-20s ", "Policy Suppressed:")
		fmt.Fprintf(out, "%d findings\n", suppressed)
	}
	for _, r := range g.Result.Repositories {
		if r.Error != "" {
			errorStyle.Fprintf(out, "%-20s ", "Failed:")
			fmt.Fprintf(out, "%s: %s\n", r.Repository, r.Error)
		}
	}

	fmt.Fprintln(out)
	subtitleStyle.Fprintln(out, "► SUMMARY")
	fmt.Fprintln(out, rule)

	summary := g.Result.Summary
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Confidence", "Count", "Indicator"})
	table.SetBorder(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	rowColors := map[results.Confidence]int{
		results.High:    tablewriter.FgHiRedColor,
		results.Medium:  tablewriter.FgHiYellowColor,
		results.Low:     tablewriter.FgBlueColor,
		results.Unknown: tablewriter.FgHiBlackColor,
	}
	for _, c := range confidenceOrder {
		n := summary.count(c)
		row := []string{string(c), fmt.Sprintf("%d", n), createBar(n, summary.Total, "█", 20)}
		if colored {
			fg := rowColors[c]
			table.Rich(row, []tablewriter.Colors{{tablewriter.Bold, fg}, {tablewriter.Bold, fg}, {fg}})
		} else {
			table.Append(row)
		}
	}
	table.Append([]string{"TOTAL", fmt.Sprintf("%d", summary.Total), ""})
	table.Render()

	if len(summary.ByIssue) > 0 {
		fmt.Fprintln(out)
		issues := tablewriter.NewWriter(out)
		issues.SetHeader([]string{"Issue Type", "Count"})
		issues.SetBorder(false)
		issues.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		for _, it := range sortedIssueTypes(summary.ByIssue) {
			issues.Append([]string{string(it), fmt.Sprintf("%d", summary.ByIssue[it])})
		}
		issues.Render()
	}

	findings := SortFindings(g.Result.Findings())
	if len(findings) == 0 {
		fmt.Fprintln(out)
		successStyle.Fprintln(out, "✅ NO TAINT FLOWS FOUND!")
		fmt.Fprintln(out, "No exploitable paths were detected in the analyzed workflows.")
	} else {
		fmt.Fprintln(out)
		subtitleStyle.Fprintln(out, "► FINDINGS")
		fmt.Fprintln(out, rule)
		width := g.term.Width()
		for i, f := range findings {
			fmt.Fprintln(out)
			confidenceStyles[f.Confidence()].Fprintf(out, "■ %d. %s [%s]\n", i+1, f.IssueType(), f.Confidence())
			infoStyle.Fprintf(out, "  %-12s ", "Repository:")
			fmt.Fprintln(out, f.RepositoryName())
			infoStyle.Fprintf(out, "  %-12s ", "Workflow:")
			fmt.Fprintln(out, displayWorkflow(f))
			infoStyle.Fprintf(out, "  %-12s ", "Triggers:")
			fmt.Fprintln(out, strings.Join(f.Triggers(), ", "))
			infoStyle.Fprintf(out, "  %-12s ", "Complexity:")
			fmt.Fprintln(out, f.Complexity())
			if s, ok := f.(sinker); ok {
				infoStyle.Fprintf(out, "  %-12s ", "Sink:")
				fmt.Fprintln(out, g.term.Truncate(oneLine(s.Sink()), width-16))
			}
			if c, ok := f.(contexter); ok && len(c.InjectableContexts()) > 0 {
				infoStyle.Fprintf(out, "  %-12s ", "Contexts:")
				fmt.Fprintln(out, strings.Join(c.InjectableContexts(), ", "))
			}
			if g.Verbose {
				infoStyle.Fprintln(out, "  Explanation:")
				for _, line := range g.term.Wrap(f.Complexity().Explanation(), width-6) {
					fmt.Fprintf(out, "    %s\n", line)
				}
				infoStyle.Fprintln(out, "  Path:")
				for _, n := range f.Path() {
					fmt.Fprintf(out, "    → %s\n", n)
				}
			}
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out)
	if g.FilePath != "" {
		fmt.Fprintf(g.Out, "CLI report written to %s\n", g.FilePath)
	}
	return nil
}

type jsonRepository struct {
	RepositoryReport
	Findings []map[string]interface{} `json:"findings"`
}

type jsonReport struct {
	Tool         string           `json:"tool"`
	Version      string           `json:"version"`
	ScanTime     time.Time        `json:"scanTime"`
	Duration     string           `json:"duration"`
	Summary      ResultSummary    `json:"summary"`
	Repositories []jsonRepository `json:"repositories"`
}

// generateJSONReport writes the machine form of every finding
func (g *Generator) generateJSONReport() error {
	doc := jsonReport{
		Tool:         constants.AppName,
		Version:      constants.AppVersion,
		ScanTime:     g.Result.ScanTime,
		Duration:     g.Result.Duration.Round(time.Millisecond).String(),
		Summary:      g.Result.Summary,
		Repositories: make([]jsonRepository, 0, len(g.Result.Repositories)),
	}
	for _, r := range g.Result.Repositories {
		jr := jsonRepository{RepositoryReport: r, Findings: make([]map[string]interface{}, 0, len(r.Findings))}
		for _, f := range SortFindings(r.Findings) {
			jr.Findings = append(jr.Findings, f.ToMachine())
		}
		doc.Repositories = append(doc.Repositories, jr)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return g.emit("JSON", append(data, '\n'))
}

// generateMarkdownReport creates a Markdown report
func (g *Generator) generateMarkdownReport() error {
	var md strings.Builder

	md.WriteString("# Flowtaint Scan Report\n\n")
	md.WriteString("## Scan Information\n\n")
	md.WriteString(fmt.Sprintf("- **Scan Time:** %s\n", g.Result.ScanTime.Format(time.RFC1123)))
	md.WriteString(fmt.Sprintf("- **Duration:** %s\n", g.Result.Duration.Round(time.Millisecond)))
	for _, r := range g.Result.Repositories {
		line := fmt.Sprintf("- **Repository:** %s (%d workflows", r.Repository, r.WorkflowsCount)
		if r.SuppressedCount > 0 {
			line += fmt.Sprintf(", %d suppressed", r.SuppressedCount)
		}
		line += ")"
		if r.Error != "" {
			line += fmt.Sprintf(" **failed:** %s", r.Error)
		}
		md.WriteString(line + "\n")
	}

	summary := g.Result.Summary
	md.WriteString("\n## Summary\n\n")
	md.WriteString("| Confidence | Count |\n")
	md.WriteString("|------------|-------|\n")
	for _, c := range confidenceOrder {
		md.WriteString(fmt.Sprintf("| %s | %d |\n", c, summary.count(c)))
	}
	md.WriteString(fmt.Sprintf("| **Total** | %d |\n", summary.Total))

	findings := SortFindings(g.Result.Findings())
	if len(findings) == 0 {
		md.WriteString("\n## ✅ No Taint Flows Found\n\n")
		md.WriteString("No exploitable paths were found in the analyzed workflows.\n")
	} else {
		md.WriteString("\n## Findings\n\n")
		for i, f := range findings {
			md.WriteString(fmt.Sprintf("### %d. %s in `%s`\n\n", i+1, f.IssueType(), displayWorkflow(f)))
			md.WriteString(fmt.Sprintf("- **Repository:** %s\n", f.RepositoryName()))
			md.WriteString(fmt.Sprintf("- **Triggers:** %s\n", strings.Join(f.Triggers(), ", ")))
			md.WriteString(fmt.Sprintf("- **Confidence:** %s\n", f.Confidence()))
			md.WriteString(fmt.Sprintf("- **Complexity:** %s: %s\n", f.Complexity(), f.Complexity().Explanation()))
			if s, ok := f.(sinker); ok {
				md.WriteString(fmt.Sprintf("- **Sink:**\n```\n%s\n```\n", strings.TrimRight(s.Sink(), "\n")))
			}
			if c, ok := f.(contexter); ok && len(c.InjectableContexts()) > 0 {
				md.WriteString(fmt.Sprintf("- **Injectable contexts:** `%s`\n", strings.Join(c.InjectableContexts(), "`, `")))
			}
			if g.Verbose {
				md.WriteString("- **Path:**\n")
				for _, n := range f.Path() {
					md.WriteString(fmt.Sprintf("  1. `%s`\n", n))
				}
			}
			md.WriteString("\n")
		}
	}

	md.WriteString("\n---\n")
	md.WriteString(fmt.Sprintf("Generated by Flowtaint v%s - GitHub Actions taint-flow analyzer\n", constants.AppVersion))
	return g.emit("Markdown", []byte(md.String()))
}

type sinker interface{ Sink() string }

type contexter interface{ InjectableContexts() []string }

func displayWorkflow(f results.Result) string {
	if p := f.InitialWorkflowPath(); p != "" {
		return p
	}
	return f.InitialWorkflow()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// createBar generates a visual bar representation for a count
func createBar(count, total int, char string, maxLength int) string {
	if total == 0 {
		return ""
	}

	ratio := float64(count) / float64(total)
	barLength := int(math.Round(ratio * float64(maxLength)))

	if count > 0 && barLength == 0 {
		barLength = 1
	}

	return strings.Repeat(char, barLength)
}

func (s ResultSummary) count(c results.Confidence) int {
	switch c {
	case results.High:
		return s.High
	case results.Medium:
		return s.Medium
	case results.Low:
		return s.Low
	default:
		return s.Unknown
	}
}

// CalculateSummary computes the summary statistics for findings
func CalculateSummary(findings []results.Result) ResultSummary {
	summary := ResultSummary{ByIssue: map[results.IssueType]int{}}

	for _, f := range findings {
		switch f.Confidence() {
		case results.High:
			summary.High++
		case results.Medium:
			summary.Medium++
		case results.Low:
			summary.Low++
		default:
			summary.Unknown++
		}
		summary.ByIssue[f.IssueType()]++
	}

	summary.Total = len(findings)
	return summary
}

// SortFindings orders findings by confidence, then issue type, then workflow
func SortFindings(findings []results.Result) []results.Result {
	sorted := make([]results.Result, len(findings))
	copy(sorted, findings)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Confidence().Rank() != b.Confidence().Rank() {
			return a.Confidence().Rank() > b.Confidence().Rank()
		}
		if a.IssueType() != b.IssueType() {
			return a.IssueType() < b.IssueType()
		}
		if a.RepositoryName() != b.RepositoryName() {
			return a.RepositoryName() < b.RepositoryName()
		}
		return displayWorkflow(a) < displayWorkflow(b)
	})

	return sorted
}

func sortedIssueTypes(m map[results.IssueType]int) []results.IssueType {
	out := make([]results.IssueType, 0, len(m))
	for it := range m {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
