package rules

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/internal/config"
	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/model"
)

func AddCommand() *cli.Command {
	return &cli.Command{
		Name:        "add",
		Usage:       "Add a device rule",
		Description: "Add a rule to the blacklist or whitelist. Absent matcher flags are wildcards; string matchers are case-insensitive substring tests",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "list", Usage: "Rule list (blacklist, whitelist)", DefaultValue: "blacklist"},
			&cli.StringFlag{Name: "vendor", Usage: "Vendor ID (hex, e.g. 0x1234)"},
			&cli.StringFlag{Name: "product", Usage: "Product ID (hex)"},
			&cli.StringFlag{Name: "class", Usage: "Device class (hex)"},
			&cli.StringFlag{Name: "manufacturer", Usage: "Manufacturer substring"},
			&cli.StringFlag{Name: "product-name", Usage: "Product name substring"},
			&cli.StringFlag{Name: "serial", Usage: "Serial number substring"},
			&cli.StringFlag{Name: "reason", Usage: "Reason for the rule", Required: true},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			log.Configure(cfg.LogLevel, cfg.LogFormat)

			list, err := parseRuleList(cmd.GetString("list"))
			if err != nil {
				return err
			}

			rule := model.DeviceRule{Reason: cmd.GetString("reason"), Enabled: true}

			if v := cmd.GetString("vendor"); v != "" {
				id, err := parseHexID(v)
				if err != nil {
					return fmt.Errorf("invalid vendor ID %q: %w", v, err)
				}
				rule.VendorID = &id
			}
			if v := cmd.GetString("product"); v != "" {
				id, err := parseHexID(v)
				if err != nil {
					return fmt.Errorf("invalid product ID %q: %w", v, err)
				}
				rule.ProductID = &id
			}
			if v := cmd.GetString("class"); v != "" {
				c, err := strconv.ParseUint(v, 16, 8)
				if err != nil {
					return fmt.Errorf("invalid device class %q: %w", v, err)
				}
				class := uint8(c)
				rule.DeviceClass = &class
			}
			if v := cmd.GetString("manufacturer"); v != "" {
				rule.Manufacturer = &v
			}
			if v := cmd.GetString("product-name"); v != "" {
				rule.Product = &v
			}
			if v := cmd.GetString("serial"); v != "" {
				rule.SerialNumber = &v
			}

			if rule.VendorID == nil && rule.ProductID == nil && rule.DeviceClass == nil &&
				rule.Manufacturer == nil && rule.Product == nil && rule.SerialNumber == nil {
				return fmt.Errorf("at least one matcher flag is required")
			}

			store, err := openStore(cfg.DataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			created, err := store.AddRule(list, rule)
			if err != nil {
				log.Error("Failed to add rule", "error", err)
				return err
			}

			log.Info("Rule added", "id", created.ID, "list", list)
			fmt.Printf("Added %s rule %s\n", list, created.ID)
			return nil
		},
	}
}
