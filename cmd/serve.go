package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/tutorbot/internal/httpapi"
	"github.com/abhisek/tutorbot/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the HTTP channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		d, err := loadTutor(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		noHTTP, _ := cmd.Flags().GetBool("no-http")
		if d.cfg.TelegramToken == "" && noHTTP {
			return errors.New("nothing to serve: TELEGRAM_BOT_TOKEN is unset and --no-http given")
		}

		g, ctx := errgroup.WithContext(ctx)
		if d.cfg.TelegramToken != "" {
			debug, _ := cmd.Flags().GetBool("telegram-debug")
			api, err := telegram.Dial(d.cfg.TelegramToken, debug)
			if err != nil {
				return err
			}
			d.log.Info("telegram authorized", zap.String("bot", api.Self.UserName))
			bot := telegram.New(api, d.tutor,
				telegram.WithWorkers(d.cfg.TelegramWorkers),
				telegram.WithLogger(d.log.Named("telegram")),
			)
			g.Go(func() error { return bot.Run(ctx) })
		} else {
			d.log.Warn("TELEGRAM_BOT_TOKEN unset; serving HTTP only")
		}
		if !noHTTP {
			srv := httpapi.NewServer(d.cfg.HTTPAddr, d.tutor, d.log)
			g.Go(func() error { return srv.Run(ctx) })
		}

		err = g.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().Bool("no-http", false, "Disable the HTTP channel")
	serveCmd.Flags().Bool("telegram-debug", false, "Log raw Bot API traffic")
}
