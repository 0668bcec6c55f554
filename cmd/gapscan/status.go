package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the state and progress of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svcs, err := buildServices(ctx, nil)
	if err != nil {
		return err
	}
	defer svcs.Close(ctx)

	record, err := svcs.service.GetRunStatus(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", record.ID)
	fmt.Printf("Tenant:   %s\n", record.TenantID)
	if record.ProjectID != "" {
		fmt.Printf("Project:  %s\n", record.ProjectID)
	}
	fmt.Printf("State:    %s\n", record.State)
	if record.Progress.Total > 0 {
		fmt.Printf("Progress: %d/%d %s\n", record.Progress.Current, record.Progress.Total, record.Progress.Message)
	}
	if record.Degraded {
		fmt.Println("Degraded: yes (template-only questions)")
	}
	if record.Error != "" {
		fmt.Printf("Error:    %s\n", record.Error)
	}
	fmt.Printf("Started:  %s\n", record.StartedAt.Format("2006-01-02 15:04:05"))
	if record.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", record.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
