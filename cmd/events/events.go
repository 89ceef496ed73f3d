// Package events implements the security event log command.
package events

import (
	"context"
	"os"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/internal/config"
	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/output"
	"github.com/KnivInstitute/IronWatch/internal/storage"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:        "events",
		Usage:       "Show the security event log",
		Description: "List persisted security events, newest first",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "format", Usage: "Output format (table, json, csv)", DefaultValue: "table"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of events", DefaultValue: 100},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			log.Configure(cfg.LogLevel, cfg.LogFormat)

			format, err := output.ParseFormat(cmd.GetString("format"))
			if err != nil {
				return err
			}

			store, err := storage.NewStorage(cfg.DataDir)
			if err != nil {
				log.Error("Failed to initialize storage", "error", err)
				return err
			}
			defer store.Close()

			events, err := store.ListSecurityEvents(cmd.GetInt("limit"))
			if err != nil {
				log.Error("Failed to list security events", "error", err)
				return err
			}

			return output.WriteSecurityEvents(os.Stdout, format, events)
		},
	}
}
