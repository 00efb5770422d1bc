package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"chatsync/listener"

	"github.com/urfave/cli/v3"
)

func ListenerCli(logger *slog.Logger) *cli.Command {
	cmd := &cli.Command{
		Name:  "listener",
		Usage: "pull events from the queue and forward them to the webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Sources:  cli.EnvVars("GCP_PROJECT"),
				Name:     "gcp-project",
				Usage:    "cloud project owning the subscription",
				Required: true,
			},
			&cli.StringFlag{
				Sources:  cli.EnvVars("PUBSUB_SUBSCRIPTION"),
				Name:     "subscription",
				Usage:    "queue subscription id to pull from",
				Required: true,
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("SA_JSON"),
				Name:    "sa-json",
				Usage:   "path to a service account key file, default credentials when empty",
			},
			&cli.StringFlag{
				Sources:  cli.EnvVars("WEBHOOK_URL"),
				Name:     "webhook-url",
				Usage:    "base url of the sync backend",
				Required: true,
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("WEBHOOK_PATH"),
				Name:    "webhook-path",
				Value:   "/webhook",
				Usage:   "webhook path on the backend",
			},
			&cli.StringFlag{
				Sources:  cli.EnvVars("WEBHOOK_TOKEN"),
				Name:     "token",
				Usage:    "webhook bearer token of the credential",
				Required: true,
			},
			&cli.DurationFlag{
				Sources: cli.EnvVars("FORWARD_TIMEOUT"),
				Name:    "timeout",
				Value:   30 * time.Second,
				Usage:   "per-forward http timeout",
			},
			&cli.IntFlag{
				Sources: cli.EnvVars("MAX_MESSAGES"),
				Name:    "max-messages",
				Value:   50,
				Usage:   "max messages processed concurrently",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l, err := listener.NewListener(ctx, listener.Config{
				GCPProject:       c.String("gcp-project"),
				SubscriptionName: c.String("subscription"),
				SAKeyPath:        c.String("sa-json"),
				WebhookURL:       c.String("webhook-url"),
				WebhookPath:      c.String("webhook-path"),
				WebhookToken:     c.String("token"),
				Timeout:          c.Duration("timeout"),
				MaxMessages:      int(c.Int("max-messages")),
			}, logger)
			if err != nil {
				return err
			}
			defer l.Close()

			return l.Run(ctx)
		},
	}

	return cmd
}
