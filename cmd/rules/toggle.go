package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/internal/config"
	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/storage"
)

func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:        "remove",
		Usage:       "Remove a device rule",
		Description: "Remove a rule by its ID",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Flags: config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return withStore(cmd, func(store *storage.Storage) error {
				id := cmd.GetStringArg("id")
				if err := store.DeleteRule(id); err != nil {
					if errors.Is(err, storage.ErrRuleNotFound) {
						return fmt.Errorf("rule %s not found", id)
					}
					return err
				}
				fmt.Printf("Removed rule %s\n", id)
				return nil
			})
		},
	}
}

func EnableCommand() *cli.Command {
	return toggleCommand("enable", true)
}

func DisableCommand() *cli.Command {
	return toggleCommand("disable", false)
}

func toggleCommand(name string, enabled bool) *cli.Command {
	return &cli.Command{
		Name:        name,
		Usage:       name + " a device rule",
		Description: "Set a rule's enabled flag without removing it",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Flags: config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return withStore(cmd, func(store *storage.Storage) error {
				id := cmd.GetStringArg("id")
				if err := store.SetRuleEnabled(id, enabled); err != nil {
					if errors.Is(err, storage.ErrRuleNotFound) {
						return fmt.Errorf("rule %s not found", id)
					}
					return err
				}
				fmt.Printf("Rule %s %sd\n", id, name)
				return nil
			})
		},
	}
}

func ModeCommand() *cli.Command {
	return &cli.Command{
		Name:        "mode",
		Usage:       "Switch blacklist or whitelist mode on or off",
		Description: "Enable or disable an entire rule list. While the whitelist is enabled, devices matching no whitelist rule are blocked regardless of the blacklist",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "list", Required: true},
			&cli.StringArg{Name: "state", Required: true},
		},
		Flags: config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return withStore(cmd, func(store *storage.Storage) error {
				list, err := parseRuleList(cmd.GetStringArg("list"))
				if err != nil {
					return err
				}
				var enabled bool
				switch cmd.GetStringArg("state") {
				case "on", "enabled":
					enabled = true
				case "off", "disabled":
					enabled = false
				default:
					return fmt.Errorf("state must be on or off")
				}
				if err := store.SetListEnabled(list, enabled); err != nil {
					return err
				}
				fmt.Printf("%s %s\n", list, onOff(enabled))
				return nil
			})
		},
	}
}

func withStore(cmd *cli.Command, fn func(*storage.Storage) error) error {
	cfg := config.Load()
	log.Configure(cfg.LogLevel, cfg.LogFormat)

	store, err := openStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
