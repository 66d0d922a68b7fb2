package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/fring/internal/openapi"
	"github.com/kamilpajak/fring/internal/report"
	"github.com/kamilpajak/fring/internal/specdiff"
)

var (
	diffFormat     string
	diffPolicy     string
	failOnBreaking bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <old-spec> <new-spec>",
	Short: "Compare two OpenAPI spec versions",
	Long:  `Computes a classified, severity-ranked diff between two OpenAPI documents.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func init() {
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format: text, markdown, or json")
	diffCmd.Flags().StringVar(&diffPolicy, "policy", "", "Severity policy YAML file overriding type-change defaults")
	diffCmd.Flags().BoolVar(&failOnBreaking, "fail-on-breaking", false, "Exit non-zero when breaking changes are found")
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldSpec, _, err := openapi.Load(args[0])
	if err != nil {
		return err
	}
	newSpec, _, err := openapi.Load(args[1])
	if err != nil {
		return err
	}

	var opts []specdiff.Option
	if diffPolicy != "" {
		policy, err := specdiff.LoadSeverityPolicy(diffPolicy)
		if err != nil {
			return fmt.Errorf("failed to load severity policy: %w", err)
		}
		opts = append(opts, specdiff.WithSeverityPolicy(policy))
	}

	diff := specdiff.Compare(oldSpec, newSpec, opts...)
	rep := specdiff.BuildReport(diff)

	switch diffFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	case "markdown":
		report.NewRenderer(os.Stdout, report.FormatMarkdown).Diff(rep)
	case "text":
		report.NewRenderer(os.Stdout, report.FormatText).Diff(rep)
	default:
		return fmt.Errorf("unknown format: %s", diffFormat)
	}

	if failOnBreaking && !diff.Summary.IsBackwardCompatible() {
		return fmt.Errorf("%d breaking changes detected", diff.Summary.BreakingChanges)
	}
	return nil
}
