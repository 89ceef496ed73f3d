// Package rules implements the blacklist/whitelist management commands.
// They operate directly on the rule store; a running monitor picks the
// changes up on its next policy reload.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/internal/model"
	"github.com/KnivInstitute/IronWatch/internal/storage"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:        "rules",
		Usage:       "Manage device security rules",
		Description: "Add, list, remove, and toggle blacklist/whitelist rules",
		Commands: []*cli.Command{
			AddCommand(),
			ListCommand(),
			RemoveCommand(),
			EnableCommand(),
			DisableCommand(),
			ModeCommand(),
		},
	}
}

func openStore(dataDir string) (*storage.Storage, error) {
	return storage.NewStorage(dataDir)
}

func parseRuleList(s string) (model.RuleList, error) {
	switch model.RuleList(s) {
	case model.Blacklist, model.Whitelist:
		return model.RuleList(s), nil
	case "":
		return model.Blacklist, nil
	default:
		return "", fmt.Errorf("invalid list %q: must be blacklist or whitelist", s)
	}
}

// parseHexID accepts "0x1234", "1234" (hex) or decimal with a "d:"
// prefix, mirroring how vendor and product IDs are usually written.
func parseHexID(s string) (uint16, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if rest, ok := strings.CutPrefix(s, "d:"); ok {
		v, err := strconv.ParseUint(rest, 10, 16)
		return uint16(v), err
	}
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	return uint16(v), err
}

func printRules(list model.RuleList, ruleSet []model.DeviceRule) {
	if len(ruleSet) == 0 {
		fmt.Printf("No %s rules\n", list)
		return
	}
	for _, r := range ruleSet {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", r.ID, state, describeMatchers(r), r.Reason)
	}
}

func describeMatchers(r model.DeviceRule) string {
	var parts []string
	if r.VendorID != nil {
		parts = append(parts, fmt.Sprintf("vid=%04x", *r.VendorID))
	}
	if r.ProductID != nil {
		parts = append(parts, fmt.Sprintf("pid=%04x", *r.ProductID))
	}
	if r.DeviceClass != nil {
		parts = append(parts, fmt.Sprintf("class=%02x", *r.DeviceClass))
	}
	if r.Manufacturer != nil {
		parts = append(parts, "manufacturer~"+*r.Manufacturer)
	}
	if r.Product != nil {
		parts = append(parts, "product~"+*r.Product)
	}
	if r.SerialNumber != nil {
		parts = append(parts, "serial~"+*r.SerialNumber)
	}
	return strings.Join(parts, ",")
}
