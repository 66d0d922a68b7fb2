package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/fring/internal/database"
	"github.com/kamilpajak/fring/internal/executor"
	"github.com/kamilpajak/fring/internal/healing"
	"github.com/kamilpajak/fring/internal/llm"
	"github.com/kamilpajak/fring/internal/openapi"
	"github.com/kamilpajak/fring/internal/parser"
	"github.com/kamilpajak/fring/internal/report"
	"github.com/kamilpajak/fring/internal/specdiff"
)

var (
	healOldSpec     string
	healNewSpec     string
	healProvider    string
	healModel       string
	healMaxTokens   int64
	healMaxCost     float64
	healRetries     int
	healConcurrency int
	healRPS         float64
	healProjectDir  string
	healValidate    bool
	healOut         string
	healFormat      string
	healVerbose     bool
)

var healCmd = &cobra.Command{
	Use:   "heal <playwright-report.json>",
	Short: "Repair failing tests after an API spec change",
	Long: `Reads a Playwright JSON report, classifies each failure, and repairs the
broken tests using deterministic rules first and an AI model when rules
do not apply. Pass the old and new spec versions to give the repair
engine the diff context.`,
	Args: cobra.ExactArgs(1),
	RunE: runHeal,
}

func init() {
	healCmd.Flags().StringVar(&healOldSpec, "old-spec", "", "Previous OpenAPI spec version")
	healCmd.Flags().StringVar(&healNewSpec, "new-spec", "", "Current OpenAPI spec version")
	healCmd.Flags().StringVar(&healProvider, "provider", "google", "LLM provider: google, openai, or anthropic")
	healCmd.Flags().StringVar(&healModel, "model", "", "Model name (provider default when empty)")
	healCmd.Flags().Int64Var(&healMaxTokens, "max-tokens", 0, "Token budget for the run (0 = default)")
	healCmd.Flags().Float64Var(&healMaxCost, "max-cost", 0, "Cost budget in USD for the run (0 = default)")
	healCmd.Flags().IntVar(&healRetries, "retries", 0, "Max AI attempts per test (0 = default)")
	healCmd.Flags().IntVar(&healConcurrency, "concurrency", 0, "Tests healed in parallel (0 = default)")
	healCmd.Flags().Float64Var(&healRPS, "rps", 0, "AI requests per second (0 = default)")
	healCmd.Flags().StringVar(&healProjectDir, "project-dir", ".", "Playwright project root containing the test sources")
	healCmd.Flags().BoolVar(&healValidate, "validate", false, "Re-run each patched test before reporting it healed")
	healCmd.Flags().StringVar(&healOut, "out", "", "Directory to write patched test files; originals are never modified")
	healCmd.Flags().StringVarP(&healFormat, "format", "f", "text", "Output format: text, markdown, or json")
	healCmd.Flags().BoolVarP(&healVerbose, "verbose", "v", false, "Stream state transitions to stderr")
}

func runHeal(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p := &parser.PlaywrightParser{}
	testReport, err := p.Parse(args[0])
	if err != nil {
		return err
	}

	failed := testReport.FailedResults()
	if len(failed) == 0 {
		fmt.Fprintln(os.Stderr, "No failing tests in report; nothing to heal.")
		return nil
	}

	diff, specVersion, err := loadDiffContext()
	if err != nil {
		return err
	}

	cfg := healing.DefaultConfig()
	cfg.MaxTokens = pickInt64(healMaxTokens, cfg.MaxTokens)
	cfg.MaxCostPerRun = pickFloat(healMaxCost, cfg.MaxCostPerRun)
	cfg.MaxRetries = pickInt(healRetries, cfg.MaxRetries)
	cfg.Concurrency = pickInt(healConcurrency, cfg.Concurrency)
	cfg.RequestsPerSecond = pickFloat(healRPS, cfg.RequestsPerSecond)

	var opts []healing.Option

	completer, err := llm.New(llm.Provider(healProvider), healModel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "AI healing disabled: %v\n", err)
	} else {
		opts = append(opts, healing.WithCompleter(completer))
	}

	var db *database.DB
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := database.Migrate(dbURL); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		db, err = database.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		opts = append(opts, healing.WithStore(db.Cache()))
	}

	if healValidate {
		opts = append(opts, healing.WithValidator(executor.New(healProjectDir)))
	}
	if healVerbose {
		opts = append(opts, healing.WithEmitter(&healing.TextEmitter{W: os.Stderr}))
	}

	orch := healing.New(cfg, opts...)

	reqs := make([]healing.Request, 0, len(failed))
	for i := range failed {
		source, err := os.ReadFile(filepath.Join(healProjectDir, failed[i].TestPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", failed[i].ID(), err)
			continue
		}
		reqs = append(reqs, healing.Request{
			Test:        &failed[i],
			Source:      string(source),
			Diff:        diff,
			SpecVersion: specVersion,
		})
	}
	if len(reqs) == 0 {
		return fmt.Errorf("no test sources found under %s", healProjectDir)
	}

	var spin *spinner.Spinner
	if !healVerbose {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		spin.Suffix = fmt.Sprintf(" healing %d tests...", len(reqs))
		spin.Start()
	}

	attempts, healErr := orch.HealAll(ctx, reqs)

	if spin != nil {
		spin.Stop()
	}

	if db != nil {
		for _, a := range attempts {
			if a == nil {
				continue
			}
			if err := db.SaveAttempt(ctx, a); err != nil {
				fmt.Fprintf(os.Stderr, "failed to record attempt %s: %v\n", a.ID, err)
			}
		}
		recordSignatures(ctx, db, reqs, attempts)
	}

	if healOut != "" {
		if err := writePatches(healOut, reqs, attempts); err != nil {
			return err
		}
	}

	done := make([]healing.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a != nil {
			done = append(done, *a)
		}
	}

	switch healFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(done); err != nil {
			return err
		}
	case "markdown":
		report.NewRenderer(os.Stdout, report.FormatMarkdown).Healing(done)
	case "text":
		report.NewRenderer(os.Stdout, report.FormatText).Healing(done)
	default:
		return fmt.Errorf("unknown format: %s", healFormat)
	}

	return healErr
}

// loadDiffContext compares the old and new specs when both are given.
func loadDiffContext() (*specdiff.SpecDiff, string, error) {
	if healOldSpec == "" && healNewSpec == "" {
		return nil, "", nil
	}
	if healOldSpec == "" || healNewSpec == "" {
		return nil, "", fmt.Errorf("--old-spec and --new-spec must be given together")
	}

	oldSpec, _, err := openapi.Load(healOldSpec)
	if err != nil {
		return nil, "", err
	}
	newSpec, _, err := openapi.Load(healNewSpec)
	if err != nil {
		return nil, "", err
	}
	return specdiff.Compare(oldSpec, newSpec), newSpec.Info.Version, nil
}

// writePatches mirrors patched test files into the output directory,
// preserving their relative paths. Originals are never modified.
func writePatches(dir string, reqs []healing.Request, attempts []*healing.Attempt) error {
	for i, a := range attempts {
		if a == nil || !a.Success || a.Patched == "" {
			continue
		}
		dest := filepath.Join(dir, reqs[i].Test.TestPath)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, []byte(a.Patched), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", dest)
	}
	return nil
}

// recordSignatures embeds each healed failure's signature so future runs
// can look up what fixed similar breaks. Best-effort: an embedding or
// insert failure costs nothing but the hint.
func recordSignatures(ctx context.Context, db *database.DB, reqs []healing.Request, attempts []*healing.Attempt) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return
	}
	embedder := llm.NewGoogleEmbedder(apiKey, "")

	for i, a := range attempts {
		if a == nil || !a.Success {
			continue
		}
		test := reqs[i].Test
		if test.Error == nil {
			continue
		}
		signature := healing.NormalizeSignature(test.Error.Message)
		vec, err := embedder.Embed(ctx, signature)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to embed signature for %s: %v\n", test.ID(), err)
			return
		}
		if err := db.SaveSignature(ctx, test.ID(), a.FailureType, signature, vec); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save signature for %s: %v\n", test.ID(), err)
			return
		}
	}
}

func pickInt64(v, fallback int64) int64 {
	if v > 0 {
		return v
	}
	return fallback
}

func pickInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func pickFloat(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
