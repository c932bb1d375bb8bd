package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/hiresense/hiresense/internal/cache"
	"github.com/hiresense/hiresense/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop all cached match scores for a user",
	Run: func(cmd *cobra.Command, _ []string) {
		invalidate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(invalidateCmd)

	invalidateCmd.Flags().StringP("user", "u", "", "user id whose cached match scores should be dropped")
	invalidateCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	_ = invalidateCmd.MarkFlagRequired("user")
}

// invalidate is the operator's escape hatch for a user whose scores look
// stale or corrupted, e.g. after incidents with the AI provider.
func invalidate(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	userID := cmd.Flag("user").Value.String()

	if cmd.Flag("yes").Value.String() == "false" {
		prompt := promptui.Select{
			Label: fmt.Sprintf("Drop all cached match scores for user %q?", userID),
			Items: []string{PromptYes, PromptNo},
		}

		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	st, err := openStore(config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	cache.NewMatchScores(st, logger, 0).InvalidateUser(ctx, userID)

	logger.Info("invalidated cached match scores", zap.String("user_id", userID))
}
