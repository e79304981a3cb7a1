package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"errship.dev/sdk"
	"errship.dev/sdk/internal/config"
)

func sendCmd() *cobra.Command {
	var webhookURL, project, environment, message string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one manual test capture through the full pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if webhookURL == "" {
				return fmt.Errorf("--webhook-url is required")
			}

			cfg := config.Default()
			cfg.WebhookURL = webhookURL
			cfg.ProjectName = project
			cfg.Environment = environment

			r, err := errship.New(cfg)
			if err != nil {
				return fmt.Errorf("construct reporter: %w", err)
			}
			defer r.Destroy()

			outcome := r.CaptureException(errors.New(message), nil)
			r.FlushQueue()

			switch {
			case outcome.Delivered:
				fmt.Println("delivered")
			case outcome.Queued:
				fmt.Println("queued for retry (offline or transport failure)")
			case outcome.Dropped:
				fmt.Printf("dropped: %s\n", outcome.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "target webhook URL")
	cmd.Flags().StringVar(&project, "project", "errshipctl-smoke-test", "project name")
	cmd.Flags().StringVar(&environment, "environment", "development", "environment name")
	cmd.Flags().StringVar(&message, "message", "errshipctl manual test capture", "error message to send")

	return cmd
}
