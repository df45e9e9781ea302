package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch recent emails once",
	Long:  "Pulls recent messages for a user from the connector and stores them, as POST /api/sync/ does",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := newLogger()
		deps, err := newDeps(ctx, logger)
		if err != nil {
			return err
		}
		defer deps.store.Close()

		if err := deps.store.Migrate(ctx); err != nil {
			return err
		}

		userID, _ := cmd.Flags().GetString("user")
		maxResults := viper.GetInt("sync.max_results")
		if cmd.Flags().Changed("max-results") {
			maxResults, _ = cmd.Flags().GetInt("max-results")
		}

		res, err := deps.service.Sync(ctx, userID, maxResults)
		if err != nil {
			return fmt.Errorf("failed to sync emails: %w", err)
		}

		fmt.Printf("✓ Synced: fetched %d, created %d, updated %d, skipped %d\n",
			res.Fetched, res.Created, res.Updated, res.Skipped)
		return nil
	},
}

func init() {
	syncCmd.Flags().String("user", "", "User id to sync (defaults to default_user_id)")
	syncCmd.Flags().Int("max-results", 50, "Maximum number of messages to fetch")
	rootCmd.AddCommand(syncCmd)
}
