package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stoik/mailbridge/services/mail-service/internal/store"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Setup database",
	Long:  "Creates the emails and connections tables and their indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		// Initialize database
		st, err := store.Open(ctx, viper.GetString("database.driver"), viper.GetString("database.url"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer st.Close()

		// Run migrations
		fmt.Println("Running migrations...")
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		fmt.Printf("✓ Database setup complete (%s)\n", viper.GetString("database.driver"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
