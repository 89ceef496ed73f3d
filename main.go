package main

import (
	"context"
	"fmt"
	"os"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/cmd/devices"
	"github.com/KnivInstitute/IronWatch/cmd/events"
	"github.com/KnivInstitute/IronWatch/cmd/rules"
	"github.com/KnivInstitute/IronWatch/cmd/server"
	"github.com/KnivInstitute/IronWatch/cmd/watch"
)

const version = "0.9.0"

func main() {
	root := &cli.Command{
		Name:        "ironwatch",
		Version:     version,
		Usage:       "USB device monitor with security policy enforcement",
		Description: "Poll the USB bus for device changes, enforce blacklist/whitelist rules, and track connection statistics",
		Commands: []*cli.Command{
			watch.Command(),
			devices.Command(),
			server.Command(),
			events.Command(),
			rules.Command(),
		},
	}

	if err := root.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
