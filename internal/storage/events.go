package storage

import (
	"database/sql"
	"fmt"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

// AppendSecurityEvents persists a batch of security events. Implements
// the monitoring service's audit sink.
func (s *Storage) AppendSecurityEvents(events []model.SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning audit transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO security_events
			(id, timestamp, event_type, action, vendor_id, product_id, bus_number, device_address,
			 product, manufacturer, serial_number, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing audit insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		d := ev.Device
		_, err := stmt.Exec(ev.ID, ev.Timestamp, string(ev.Type), string(ev.Action),
			int64(d.VendorID), int64(d.ProductID), int64(d.BusNumber), int64(d.DeviceAddress),
			nullString(d.Product), nullString(d.Manufacturer), nullString(d.SerialNumber), ev.Reason)
		if err != nil {
			return fmt.Errorf("inserting security event %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

// ListSecurityEvents returns up to limit persisted events, newest
// first. A limit of zero or less means no limit.
func (s *Storage) ListSecurityEvents(limit int) ([]model.SecurityEvent, error) {
	query := `
		SELECT id, timestamp, event_type, action, vendor_id, product_id, bus_number, device_address,
		       product, manufacturer, serial_number, reason
		FROM security_events ORDER BY timestamp DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing security events: %w", err)
	}
	defer rows.Close()

	var events []model.SecurityEvent
	for rows.Next() {
		var (
			ev                            model.SecurityEvent
			evType, action                string
			vid, pid, bus, addr           int64
			product, manufacturer, serial sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &evType, &action, &vid, &pid, &bus, &addr,
			&product, &manufacturer, &serial, &ev.Reason); err != nil {
			return nil, fmt.Errorf("scanning security event: %w", err)
		}
		ev.Type = model.SecurityEventType(evType)
		ev.Action = model.SecurityAction(action)
		ev.Device = model.DeviceSnapshot{
			VendorID:      uint16(vid),
			ProductID:     uint16(pid),
			BusNumber:     uint8(bus),
			DeviceAddress: uint8(addr),
			Timestamp:     ev.Timestamp,
		}
		if product.Valid {
			ev.Device.Product = &product.String
		}
		if manufacturer.Valid {
			ev.Device.Manufacturer = &manufacturer.String
		}
		if serial.Valid {
			ev.Device.SerialNumber = &serial.String
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
