package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	recomputeUser int64
	recomputeAll  bool
)

func init() {
	recomputeCmd.Flags().Int64VarP(&recomputeUser, "user", "u", 0, "user id to re-evaluate")
	recomputeCmd.Flags().BoolVar(&recomputeAll, "all", false, "re-evaluate every user")
	rootCmd.AddCommand(recomputeCmd)
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Re-evaluate achievements for one user or everyone",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if (recomputeUser > 0) == recomputeAll {
			return errors.New("exactly one of --user or --all is required")
		}
		return nil
	},
	RunE: runRecompute,
}

func runRecompute(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()

	if recomputeAll {
		n, err := e.svc.SweepAchievements(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d users unlocked new achievements\n", n)
		return nil
	}

	res, err := e.svc.ReevaluateUser(cmd.Context(), recomputeUser)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "User %d: %d XP, level %d, streak %d\n",
		recomputeUser, res.Progress.ExperiencePoints, res.Level.Level, res.Progress.CurrentStreak)
	for _, d := range res.NewlyUnlocked {
		fmt.Fprintf(out, "  unlocked %s (+%d XP)\n", d.Code, d.Points)
	}
	return nil
}
