// Package output renders core data (device lists, change batches,
// security events, analytics) as tables, JSON or CSV. It holds no state
// and contains no monitoring logic.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

// Format selects the rendering style.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatCSV:
		return Format(s), nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be table, json, or csv", s)
	}
}

const timestampFormat = "2006-01-02 15:04:05 MST"

// WriteDevices renders a device list.
func WriteDevices(w io.Writer, format Format, devices []model.DeviceSnapshot) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, devices)
	case FormatCSV:
		cw := csv.NewWriter(w)
		cw.Write([]string{"bus", "address", "vendor_id", "product_id", "manufacturer", "product", "serial", "class", "status"})
		for _, d := range devices {
			cw.Write([]string{
				strconv.Itoa(int(d.BusNumber)),
				strconv.Itoa(int(d.DeviceAddress)),
				fmt.Sprintf("%04x", d.VendorID),
				fmt.Sprintf("%04x", d.ProductID),
				strOrEmpty(d.Manufacturer),
				strOrEmpty(d.Product),
				strOrEmpty(d.SerialNumber),
				strconv.Itoa(int(d.DeviceClass)),
				string(d.Status),
			})
		}
		cw.Flush()
		return cw.Error()
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "BUS\tADDR\tVID:PID\tMANUFACTURER\tPRODUCT\tSERIAL\tSTATUS")
		for _, d := range devices {
			fmt.Fprintf(tw, "%d\t%d\t%04x:%04x\t%s\t%s\t%s\t%s\n",
				d.BusNumber, d.DeviceAddress, d.VendorID, d.ProductID,
				truncate(strOrDash(d.Manufacturer), 24),
				truncate(strOrDash(d.Product), 32),
				truncate(strOrDash(d.SerialNumber), 20),
				d.Status)
		}
		return tw.Flush()
	}
}

// WriteChanges renders a change batch.
func WriteChanges(w io.Writer, format Format, changes []model.DeviceChange) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, changes)
	case FormatCSV:
		cw := csv.NewWriter(w)
		for _, c := range changes {
			d := c.Device
			cw.Write([]string{
				d.Timestamp.Format(timestampFormat),
				string(c.Type),
				fmt.Sprintf("%04x", d.VendorID),
				fmt.Sprintf("%04x", d.ProductID),
				d.DisplayName(),
			})
		}
		cw.Flush()
		return cw.Error()
	default:
		for _, c := range changes {
			d := c.Device
			fmt.Fprintf(w, "[%s] %-12s %04x:%04x %s (bus %d, addr %d)\n",
				d.Timestamp.Format("15:04:05"), c.Type,
				d.VendorID, d.ProductID, d.DisplayName(), d.BusNumber, d.DeviceAddress)
		}
		return nil
	}
}

// WriteSecurityEvents renders the security event log.
func WriteSecurityEvents(w io.Writer, format Format, events []model.SecurityEvent) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, events)
	case FormatCSV:
		cw := csv.NewWriter(w)
		cw.Write([]string{"timestamp", "type", "action", "vendor_id", "product_id", "device", "reason"})
		for _, ev := range events {
			cw.Write([]string{
				ev.Timestamp.Format(timestampFormat),
				string(ev.Type),
				string(ev.Action),
				fmt.Sprintf("%04x", ev.Device.VendorID),
				fmt.Sprintf("%04x", ev.Device.ProductID),
				ev.Device.DisplayName(),
				ev.Reason,
			})
		}
		cw.Flush()
		return cw.Error()
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tTYPE\tACTION\tDEVICE\tREASON")
		for _, ev := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%04x:%04x %s\t%s\n",
				ev.Timestamp.Format(timestampFormat), ev.Type, ev.Action,
				ev.Device.VendorID, ev.Device.ProductID,
				truncate(ev.Device.DisplayName(), 28),
				truncate(ev.Reason, 48))
		}
		return tw.Flush()
	}
}

// WriteAnalytics renders an analytics summary.
func WriteAnalytics(w io.Writer, format Format, a model.DeviceAnalytics) error {
	if format == FormatJSON {
		return writeJSON(w, a)
	}
	fmt.Fprintf(w, "Unique devices:      %d\n", a.UniqueDevices)
	fmt.Fprintf(w, "History entries:     %d\n", a.TotalDevicesSeen)
	fmt.Fprintf(w, "Blocked devices:     %d\n", a.BlockedDevices)
	fmt.Fprintf(w, "Security events:     %d\n", a.SecurityViolations)
	if len(a.VendorDistribution) > 0 {
		fmt.Fprintln(w, "Vendors:")
		for vid, count := range a.VendorDistribution {
			fmt.Fprintf(w, "  %04x: %d\n", vid, count)
		}
	}
	if len(a.ConnectionFrequency) > 0 {
		fmt.Fprintln(w, "Connections (last 24h, hourly):")
		for _, bucket := range a.ConnectionFrequency {
			if bucket.Connections > 0 {
				fmt.Fprintf(w, "  %s  %d\n", bucket.HourStart.Format("15:04"), bucket.Connections)
			}
		}
	}
	return nil
}

// Notification builds the (title, body) pair handed to an external
// notification sink for a device change.
func Notification(change model.DeviceChange) (title, body string) {
	d := change.Device
	name := d.DisplayName()
	switch change.Type {
	case model.ChangeConnected:
		return "USB device connected", fmt.Sprintf("%s (%04x:%04x)", name, d.VendorID, d.ProductID)
	case model.ChangeDisconnected:
		return "USB device disconnected", fmt.Sprintf("%s (%04x:%04x)", name, d.VendorID, d.ProductID)
	case model.ChangeReconnected:
		return "USB device reconnected", fmt.Sprintf("%s (%04x:%04x)", name, d.VendorID, d.ProductID)
	default:
		return "USB device blocked", fmt.Sprintf("%s (%04x:%04x) was blocked by security policy", name, d.VendorID, d.ProductID)
	}
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
