package cmd

import (
	"os/user"

	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbot/internal/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the tutor in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadTutor(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		learnerID, _ := cmd.Flags().GetString("learner")
		name := ""
		if learnerID == "" {
			learnerID = "console:local"
			if u, err := user.Current(); err == nil {
				learnerID = "console:" + u.Username
				name = u.Name
			}
		}
		ctx := cmd.Context()
		if _, err := d.tutor.RegisterLearner(ctx, learnerID, name); err != nil {
			return err
		}
		return console.Run(ctx, d.tutor, learnerID, d.tutor.Curriculum().Title)
	},
}

func init() {
	consoleCmd.Flags().String("learner", "", "Learner id to chat as (default console:<os user>)")
}
