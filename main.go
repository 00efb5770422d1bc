package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"chatsync/cmd"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	ufcli "github.com/urfave/cli/v3"
)

// make version a variable so the build system can inject it
var version = "unknown"

func main() {
	godotenv.Load()

	logger := setupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)

	var runCmd *ufcli.Command

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "listener":
			runCmd = cmd.ListenerCli(logger)
		case "version":
			fmt.Println(version)
			return
		default:
			runCmd = cmd.ServerCli(logger)
		}
	} else {
		runCmd = cmd.ServerCli(logger)
	}

	args := os.Args
	if len(args) > 1 && (args[1] == "server" || args[1] == "listener") {
		args = append(args[:1], args[2:]...)
	}

	if err := runCmd.Run(context.Background(), args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
