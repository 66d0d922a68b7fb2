package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/fring/internal/failure"
	"github.com/kamilpajak/fring/internal/parser"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <playwright-report.json>",
	Short: "Classify failures in a Playwright JSON report",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output analyses as JSON")
}

type analyzedFailure struct {
	TestRef  string                   `json:"test_ref"`
	Analysis *failure.FailureAnalysis `json:"analysis"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	p := &parser.PlaywrightParser{}
	rep, err := p.Parse(args[0])
	if err != nil {
		return err
	}

	failed := rep.FailedResults()
	if len(failed) == 0 {
		fmt.Println("No failures to analyze.")
		return nil
	}

	var analyses []analyzedFailure
	for i := range failed {
		analysis, err := failure.Analyze(&failed[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", failed[i].ID(), err)
			continue
		}
		analyses = append(analyses, analyzedFailure{TestRef: failed[i].ID(), Analysis: analysis})
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analyses)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"TEST", "TYPE", "CONFIDENCE", "SUGGESTED FIX"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: 60},
		{Number: 4, WidthMax: 60},
	})
	for _, a := range analyses {
		fix := ""
		if len(a.Analysis.PotentialFixes) > 0 {
			fix = a.Analysis.PotentialFixes[0].Description
		}
		t.AppendRow(table.Row{
			a.TestRef,
			string(a.Analysis.Type),
			fmt.Sprintf("%.0f%%", a.Analysis.Confidence*100),
			fix,
		})
	}
	t.Render()
	return nil
}
