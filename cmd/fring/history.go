package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/fring/internal/database"
	"github.com/kamilpajak/fring/internal/healing"
	"github.com/kamilpajak/fring/internal/llm"
)

var (
	historyTest    string
	historySince   time.Duration
	historyLimit   int
	historySimilar string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past healing attempts",
	Long:  `Lists healing attempts recorded in the database (DATABASE_URL required).`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyTest, "test", "", "Only attempts for this test reference")
	historyCmd.Flags().DurationVar(&historySince, "since", 7*24*time.Hour, "How far back to look")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum attempts to list")
	historyCmd.Flags().StringVar(&historySimilar, "similar", "", "Also list stored failures similar to this error message")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	since := time.Now().Add(-historySince)
	attempts, err := db.ListAttempts(ctx, database.ListAttemptsParams{
		TestRef: historyTest,
		Since:   since,
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}

	healed, failed, err := db.CountAttemptsSince(ctx, since)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"WHEN", "TEST", "STRATEGY", "STATE", "TOKENS", "REASON"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 50},
		{Number: 6, WidthMax: 50},
	})
	for _, a := range attempts {
		t.AppendRow(table.Row{
			a.StartTime.Local().Format("2006-01-02 15:04"),
			a.TestRef,
			string(a.Strategy),
			string(a.State),
			a.TokensUsed,
			a.Reason,
		})
	}
	t.Render()
	fmt.Printf("\n%d healed, %d failed since %s\n", healed, failed, since.Local().Format("2006-01-02"))

	if historySimilar != "" {
		return printSimilar(ctx, db, historySimilar)
	}
	return nil
}

func printSimilar(ctx context.Context, db *database.DB, message string) error {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("--similar requires GOOGLE_API_KEY for embeddings")
	}

	embedder := llm.NewGoogleEmbedder(apiKey, "")
	vec, err := embedder.Embed(ctx, healing.NormalizeSignature(message))
	if err != nil {
		return err
	}

	similar, err := db.SimilarSignatures(ctx, vec, 5)
	if err != nil {
		return err
	}
	if len(similar) == 0 {
		fmt.Println("\nNo similar failures recorded.")
		return nil
	}

	fmt.Println("\nSimilar past failures:")
	for _, s := range similar {
		fmt.Printf("  %-10s %-50s distance %.3f\n", s.FailureType, s.TestRef, s.Distance)
	}
	return nil
}
