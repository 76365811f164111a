/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/backup"
	"github.com/taskboard/apiserver/internal/logger"
	"github.com/taskboard/apiserver/internal/server"
	"github.com/taskboard/apiserver/internal/storage"
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a snapshot of every account to object storage",
	Long: `Pages through all users and uploads one JSON snapshot to the
configured object storage backend (STORAGE_BACKEND). Password hashes are
never included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		log := logger.New(cfg.LogLevel)
		ctx := cmd.Context()

		users, closeStore, err := server.OpenStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = closeStore()
		}()

		objects, err := storage.Open(ctx, cfg)
		if err != nil {
			return err
		}

		_, err = backup.NewRunner(users, objects, log).Run(ctx, time.Now())
		return err
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
