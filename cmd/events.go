/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/events"
	"github.com/taskboard/apiserver/internal/logger"
	"github.com/taskboard/apiserver/internal/mq"
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log every event published on EVENTS_CHANNEL until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		log := logger.New(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = backend.Close()
		}()

		log.Info("tailing events", "backend", cfg.EventsBackend, "channel", cfg.EventsChannel)
		err = events.Subscribe(ctx, backend, cfg.EventsChannel, func(ctx context.Context, event events.Event) error {
			attrs := []any{"id", event.ID, "type", event.Type, "user_id", event.UserID, "occurred_at", event.OccurredAt}
			if event.TaskID != nil {
				attrs = append(attrs, "task_id", *event.TaskID)
			}
			log.InfoContext(ctx, "event", attrs...)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
