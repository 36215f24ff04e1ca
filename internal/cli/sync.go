package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull delivery stages from the CRM once",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cfg.CRMSystemAddress == "" {
		return errors.New("CRM_SYSTEM_ADDRESS is not set")
	}

	if err := e.svc.SyncDeliveries(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Delivery sync finished")
	return nil
}
