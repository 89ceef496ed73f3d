// Package devices implements the one-shot device listing command.
package devices

import (
	"context"
	"os"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/model"
	"github.com/KnivInstitute/IronWatch/internal/output"
	"github.com/KnivInstitute/IronWatch/internal/usb"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:        "devices",
		Usage:       "List connected USB devices",
		Description: "Take one snapshot of the USB bus and print the visible devices",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Usage: "Case-insensitive device name filter"},
			&cli.StringFlag{Name: "format", Usage: "Output format (table, json, csv)", DefaultValue: "table"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			format, err := output.ParseFormat(cmd.GetString("format"))
			if err != nil {
				return err
			}

			reader, err := usb.New()
			if err != nil {
				log.Error("USB reader unavailable", "error", err)
				return err
			}
			defer reader.Close()

			snapshot, err := reader.Snapshot()
			if err != nil {
				log.Error("Bus snapshot failed", "error", err)
				return err
			}

			devices := model.FilterByName(snapshot, cmd.GetString("filter"))
			log.Debug("Snapshot taken", "total", len(snapshot), "after_filter", len(devices))
			return output.WriteDevices(os.Stdout, format, devices)
		},
	}
}
