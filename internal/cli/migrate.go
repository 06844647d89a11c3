package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/molbhav/molbhav/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run SQL migrations against the durable tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		dir, err := migrationsDir()
		if err != nil {
			return err
		}
		if err := db.Migrate(ctx, pool, dir); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func migrationsDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return filepath.Join(wd, "migrations"), nil
}
