// Package watch runs the monitor in the foreground and prints device
// changes as they happen.
package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/internal/config"
	"github.com/KnivInstitute/IronWatch/internal/hub"
	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/monitor"
	"github.com/KnivInstitute/IronWatch/internal/output"
	"github.com/KnivInstitute/IronWatch/internal/storage"
)

// drainInterval is how often the consumer loop polls the hub for
// pending events. Event retrieval is non-blocking by design.
const drainInterval = 200 * time.Millisecond

func Command() *cli.Command {
	return &cli.Command{
		Name:        "watch",
		Usage:       "Monitor USB devices in the foreground",
		Description: "Continuously poll the USB bus, enforce the security policy and print device changes until interrupted",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "format", Usage: "Output format (table, json, csv)", DefaultValue: "table"},
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

			policySet, err := store.LoadPolicy()
			if err != nil {
				log.Error("Failed to load security policy", "error", err)
				return err
			}
			log.Info("Security policy loaded",
				"blacklist_rules", len(policySet.Blacklist),
				"whitelist_rules", len(policySet.Whitelist))

			consumer, endpoint := hub.New()
			service := monitor.NewService(endpoint, policySet, monitor.Options{
				PollInterval:   cfg.PollInterval,
				Filter:         cfg.DeviceFilter,
				Audit:          store,
				PolicyProvider: store.LoadPolicy,
			})

			done := make(chan error, 1)
			go func() {
				done <- service.Run(ctx)
			}()

			if err := consumer.StartMonitoring(); err != nil {
				return err
			}

			statusCh := consumer.SubscribeStatus()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			ticker := time.NewTicker(drainInterval)
			defer ticker.Stop()

			for {
				select {
				case <-sigCh:
					log.Info("Shutting down...")
					if err := consumer.Shutdown(); err != nil {
						log.Warn("Shutdown command not delivered", "error", err)
					}
					return <-done

				case status, ok := <-statusCh:
					if !ok {
						return <-done
					}
					log.Info("Monitoring status changed", "state", status.State, "message", status.Message)

				case <-ticker.C:
					drainEvents(consumer, format)
				}
			}
		},
	}
}

func drainEvents(consumer *hub.Hub, format output.Format) {
	for {
		ev, ok := consumer.TryRecvEvent()
		if !ok {
			return
		}
		switch ev.Type {
		case hub.EvtDevicesLoaded:
			fmt.Printf("Found %d USB devices\n", len(ev.Devices))
			output.WriteDevices(os.Stdout, format, ev.Devices)
		case hub.EvtDevicesChanged:
			output.WriteChanges(os.Stdout, format, ev.Changes)
			for _, change := range ev.Changes {
				title, body := output.Notification(change)
				log.Debug("Notification", "title", title, "body", body)
			}
		case hub.EvtPermissionError:
			log.Error("Permission problem", "detail", ev.Message)
		case hub.EvtUsbUnavailable:
			log.Error("USB subsystem unavailable", "detail", ev.Message)
		case hub.EvtMonitoringError:
			log.Error("Monitoring error", "detail", ev.Message)
		}
	}
}
