package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbot/internal/tutor"
)

var learnerCmd = &cobra.Command{
	Use:   "learner",
	Short: "Inspect and manage learners",
}

var learnerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learners, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadBase(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		learners, err := d.store.ListLearners(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(learners) == 0 {
			fmt.Fprintln(out, "No learners yet.")
			return nil
		}
		fmt.Fprintf(out, "%-24s  %-20s  %-6s  %-19s  %s\n", "ID", "Name", "Lesson", "Last active", "")
		fmt.Fprintln(out, strings.Repeat("─", 84))
		for _, l := range learners {
			mark := ""
			if l.Archived {
				mark = "archived"
			}
			fmt.Fprintf(out, "%-24s  %-20s  %-6d  %-19s  %s\n",
				truncate(l.ID, 24), truncate(l.DisplayName, 20), l.CurrentLesson,
				l.LastActiveAt.Local().Format("2006-01-02 15:04:05"), mark)
		}
		return nil
	},
}

var learnerProgressCmd = &cobra.Command{
	Use:   "progress <learner-id>",
	Short: "Show a learner's progress through the curriculum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadOffline(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		reply := d.tutor.HandleMessage(cmd.Context(), args[0], tutor.CmdProgress)
		if reply.Kind == tutor.ReplyError {
			return fmt.Errorf("%s", reply.Text)
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
		return nil
	},
}

var learnerHistoryCmd = &cobra.Command{
	Use:   "history <learner-id>",
	Short: "List a learner's finished lesson attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		verbose, _ := cmd.Flags().GetBool("verbose")

		d, err := loadBase(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		history, err := d.store.SessionHistory(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(history) == 0 {
			fmt.Fprintln(out, "No finished lessons.")
			return nil
		}
		fmt.Fprintf(out, "%-16s  %-19s  %-13s  %7s  %s\n", "Lesson", "Ended", "Outcome", "Average", "Duration")
		fmt.Fprintln(out, strings.Repeat("─", 72))
		for _, s := range history {
			ended, dur := "-", "-"
			if s.EndedAt != nil {
				ended = s.EndedAt.Local().Format("2006-01-02 15:04:05")
				dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
			}
			avg := "-"
			if v, ok := s.Average(); ok {
				avg = fmt.Sprintf("%.1f", v)
			}
			fmt.Fprintf(out, "%-16s  %-19s  %-13s  %7s  %s\n", truncate(s.LessonID, 16), ended, s.Outcome, avg, dur)
			if verbose {
				printAttempts(cmd, s)
			}
		}
		return nil
	},
}

func printAttempts(cmd *cobra.Command, s tutor.Session) {
	out := cmd.OutOrStdout()
	for _, a := range s.Attempts {
		fmt.Fprintf(out, "    Q%d [%s] %s\n", a.Index+1, a.Difficulty, a.Question)
		if !a.Answered() {
			fmt.Fprintln(out, "       (unanswered)")
			continue
		}
		fmt.Fprintf(out, "       A: %s\n", *a.Answer)
		fmt.Fprintf(out, "       %.0f/100 (confidence %.2f) %s\n", *a.Score, a.Confidence, a.Feedback)
	}
}

var learnerArchiveCmd = &cobra.Command{
	Use:   "archive <learner-id>",
	Short: "Abandon a learner's lessons and archive them; progress is kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadOffline(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.tutor.ArchiveLearner(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Archived %s. Their next message reactivates them.\n", args[0])
		return nil
	},
}

func init() {
	learnerHistoryCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
	learnerHistoryCmd.Flags().BoolP("verbose", "v", false, "Show questions, answers and scores")

	learnerCmd.AddCommand(learnerListCmd)
	learnerCmd.AddCommand(learnerProgressCmd)
	learnerCmd.AddCommand(learnerHistoryCmd)
	learnerCmd.AddCommand(learnerArchiveCmd)
}
