package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gapscan/gapscan/internal/models"
)

var feedbackTenant string

var feedbackCmd = &cobra.Command{
	Use:   "feedback <question-id> <answered|skipped|dismissed>",
	Short: "Record a response to a generated question",
	Long: `Records feedback against a question from a previous run. Feedback
shifts how heavily that question's gap category is weighted in future runs.`,
	Args: cobra.ExactArgs(2),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackTenant, "tenant", "default", "tenant id")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	questionID := args[0]

	var feedbackType models.FeedbackType
	switch args[1] {
	case "answered":
		feedbackType = models.FeedbackAnswered
	case "skipped":
		feedbackType = models.FeedbackSkipped
	case "dismissed":
		feedbackType = models.FeedbackDismissed
	default:
		return fmt.Errorf("feedback type must be answered, skipped, or dismissed; got %q", args[1])
	}

	svcs, err := buildServices(ctx, nil)
	if err != nil {
		return err
	}
	defer svcs.Close(ctx)

	if err := svcs.service.SubmitFeedback(ctx, feedbackTenant, questionID, feedbackType); err != nil {
		return err
	}
	fmt.Printf("Recorded %s for question %s\n", feedbackType, questionID)
	return nil
}
