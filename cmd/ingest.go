package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbot/internal/config"
	"github.com/abhisek/tutorbot/internal/llm"
	"github.com/abhisek/tutorbot/internal/logging"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.jsonl]",
	Short: "Load a JSONL knowledge base into the vector index",
	Long: "Each line is {\"prompt\": ..., \"response\": ..., \"metadata\": {\"topic\": ...}}.\n" +
		"Malformed lines and passages already indexed are skipped.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.LogMode, cfg.LogLevel)
		if err != nil {
			return err
		}
		d := &deps{cfg: cfg, log: log}
		defer d.Close()

		if err := d.openIndex(ctx, llm.ConfigFromEnv()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if reembed, _ := cmd.Flags().GetBool("reembed"); reembed {
			n, err := d.index.Reembed(ctx)
			if err != nil {
				return fmt.Errorf("re-embed: %w", err)
			}
			fmt.Fprintf(out, "Re-embedded %d passages.\n", n)
		}

		path := cfg.KnowledgeFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			if reembed, _ := cmd.Flags().GetBool("reembed"); reembed {
				return nil
			}
			return fmt.Errorf("no knowledge file: pass one or set TUTOR_KNOWLEDGE_FILE")
		}

		stats, err := d.index.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		total, err := d.index.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Read %d lines: %d added, %d already indexed, %d skipped. Index holds %d passages.\n",
			stats.Lines, stats.Added, stats.Duplicates, stats.Skipped, total)
		return nil
	},
}

func init() {
	ingestCmd.Flags().Bool("reembed", false, "Recompute every stored embedding with the current embedder first")
}
