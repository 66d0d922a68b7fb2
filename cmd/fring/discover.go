package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/fring/internal/discovery"
)

var discoverJSON bool

var discoverCmd = &cobra.Command{
	Use:   "discover [dir]",
	Short: "Find test reports under a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "Output discovered reports as JSON")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	reports, err := discovery.Scan(dir)
	if err != nil {
		return err
	}

	if discoverJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	if len(reports) == 0 {
		fmt.Println("No test reports found.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"REPORT", "TYPE", "TESTS", "FAILED"})
	for _, r := range reports {
		t.AppendRow(table.Row{r.Path, string(r.Type), r.TotalTests, r.FailedTests})
	}
	t.Render()
	return nil
}
