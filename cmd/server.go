package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"chatsync/auth"
	"chatsync/database"
	"chatsync/events"
	"chatsync/gateway"
	"chatsync/mapper"
	"chatsync/scheduler"
	"chatsync/server"

	"github.com/urfave/cli/v3"
)

func ServerCli(logger *slog.Logger) *cli.Command {
	cmd := &cli.Command{
		Name:  "server",
		Usage: "run the sync backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Sources: cli.EnvVars("DB_BACKEND"),
				Name:    "db-backend",
				Aliases: []string{"db"},
				Value:   "sqlite",
				Usage:   "database driver to use",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("DB_PATH"),
				Name:    "db-path",
				Aliases: []string{"dp"},
				Value:   "chatsync.db",
				Usage:   "For sqlite the path to the database file",
			},
			&cli.BoolFlag{
				Sources: cli.EnvVars("DEBUG"),
				Name:    "debug",
				Aliases: []string{"d"},
				Value:   false,
				Usage:   "enable debug mode",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("HOST"),
				Name:    "host",
				Aliases: []string{"b"},
				Value:   "127.0.0.1",
				Usage:   "server bind address",
			},
			&cli.BoolFlag{
				Sources: cli.EnvVars("SSL"),
				Name:    "ssl",
				Aliases: []string{"s"},
				Value:   false,
				Usage:   "enable ssl",
			},
			&cli.IntFlag{
				Sources: cli.EnvVars("PORT"),
				Name:    "port",
				Aliases: []string{"p"},
				Value:   1984,
				Usage:   "server port",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("ADMIN_TOKEN"),
				Name:    "admin-token",
				Usage:   "bearer token protecting the private api",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("PUBSUB_TOPIC"),
				Name:    "topic",
				Usage:   "queue topic new event subscriptions publish to",
			},
			&cli.IntFlag{
				Sources: cli.EnvVars("NETWORK_RETRIES"),
				Name:    "network-retries",
				Value:   0,
				Usage:   "extra attempts for outbound calls that fail at the transport level",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			db := database.SetupDatabase(c.String("db-backend"), c.String("db-path"), c.Bool("debug"))

			authManager := auth.NewManager(db, logger)
			gw := gateway.NewClient(authManager, logger)
			gw.NetworkRetries = int(c.Int("network-retries"))
			router := events.NewRouter(db, logger)
			m := mapper.NewMapper(db, gw, logger)

			sched := scheduler.NewSchedulerService(db, m, logger)
			sched.RegisterTasks()
			sched.Start()
			defer sched.Stop()

			s, fullHost := server.BackendServer(db, authManager, router, m, c.String("topic"),
				c.String("host"), c.Int("port"), c.Bool("ssl"), c.String("admin-token"), logger)
			server.ServerStatus = "running"
			fmt.Printf("Starting server on %s\n", fullHost)

			return s.ListenAndServe()
		},
	}

	return cmd
}
