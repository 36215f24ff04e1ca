package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/impact-portal/internal/config"
	"github.com/mmeshcher/impact-portal/internal/middleware"
)

var tokenUser int64

func init() {
	tokenCmd.Flags().Int64VarP(&tokenUser, "user", "u", 0, "user id to sign")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed auth cookie value for local testing",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenUser <= 0 {
		return errors.New("--user must be a positive id")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	if cfg.AuthSecret == "" {
		return errors.New("AUTH_SECRET is required to sign a token")
	}

	auth := middleware.NewAuthMiddleware(cfg.AuthSecret)
	fmt.Fprintln(cmd.OutOrStdout(), auth.IssueToken(tokenUser))
	return nil
}
