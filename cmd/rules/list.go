package rules

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/internal/config"
	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/model"
)

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List device rules",
		Description: "List the rules in the blacklist and whitelist along with the active policy mode",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			log.Configure(cfg.LogLevel, cfg.LogFormat)

			store, err := openStore(cfg.DataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			policySet, err := store.LoadPolicy()
			if err != nil {
				log.Error("Failed to load policy", "error", err)
				return err
			}

			fmt.Printf("Blacklist (%s):\n", onOff(policySet.BlacklistEnabled))
			printRules(model.Blacklist, policySet.Blacklist)
			fmt.Printf("\nWhitelist (%s):\n", onOff(policySet.WhitelistEnabled))
			printRules(model.Whitelist, policySet.Whitelist)
			return nil
		},
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
