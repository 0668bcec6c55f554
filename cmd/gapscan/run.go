package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/orchestrator"
	"github.com/gapscan/gapscan/internal/source"
	"github.com/gapscan/gapscan/internal/storage"
)

var (
	runTenant  string
	runProject string
	runDocs    string
	runForce   bool
	runTop     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full gap analysis pipeline over a document set",
	Long: `Extracts entities from every document, assembles the knowledge graph,
detects gaps, and prints the top prioritized questions.

The document file is a JSON array of objects with id, content, author,
created_at, and updated_at fields.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTenant, "tenant", "default", "tenant id")
	runCmd.Flags().StringVar(&runProject, "project", "", "project id")
	runCmd.Flags().StringVar(&runDocs, "docs", "", "path to the JSON document file (required)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "re-run even if no new documents exist")
	runCmd.Flags().IntVar(&runTop, "top", 10, "number of prioritized questions to print")
	runCmd.MarkFlagRequired("docs")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svcs, err := buildServices(ctx, source.NewJSONFile(runDocs))
	if err != nil {
		return err
	}
	defer svcs.Close(ctx)

	runID, err := svcs.service.Run(ctx, orchestrator.RunRequest{
		TenantID:  runTenant,
		ProjectID: runProject,
		Force:     runForce,
	}, func(current, total int, message string) {
		logger.WithField("progress", fmt.Sprintf("%d/%d", current, total)).Debug(message)
	})
	if err != nil {
		return err
	}
	logger.WithField("run", runID).Info("Run submitted")

	record, err := waitForRun(ctx, svcs, runID)
	if err != nil {
		return err
	}
	if record.State == models.RunFailed {
		return fmt.Errorf("run failed: %s", record.Error)
	}

	result, err := svcs.store.GetResult(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Println("Already up to date; nothing new to analyze. Use --force to re-run.")
		return nil
	}
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func waitForRun(ctx context.Context, svcs *services, runID string) (*models.RunRecord, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		record, err := svcs.service.GetRunStatus(ctx, runID)
		if err != nil {
			return nil, err
		}
		if record.State == models.RunDone || record.State == models.RunFailed {
			return record, nil
		}
	}
}

func printResult(result *models.GapAnalysisResult) {
	fmt.Printf("\nAnalyzed %d documents (%d skipped): %d entities, %d relationships\n",
		result.Stats.DocumentCount, result.Stats.SkippedDocuments,
		result.Stats.EntityCount, result.Stats.RelationshipCount)
	fmt.Printf("Found %d knowledge gaps across %d categories\n",
		result.Stats.GapCount, len(result.CategoriesFound))
	if result.Degraded {
		fmt.Println("Note: LLM unavailable for phrasing; questions use templates")
	}

	questionsByID := make(map[string]models.GeneratedQuestion, len(result.Questions))
	for _, q := range result.Questions {
		questionsByID[q.ID] = q
	}

	fmt.Printf("\nTop questions to ask:\n")
	shown := 0
	for _, p := range result.Prioritized {
		if shown >= runTop {
			break
		}
		q, ok := questionsByID[p.QuestionID]
		if !ok {
			continue
		}
		shown++
		fmt.Printf("%3d. [%.2f] %s\n", p.Rank, p.Score, q.Text)
		fmt.Printf("        id: %s\n", q.ID)
	}
	if shown == 0 {
		fmt.Println("  (no questions generated)")
	}
}
