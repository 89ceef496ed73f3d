package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

// AddRule stores a rule in the given list and returns it with its
// generated ID and creation time filled in.
func (s *Storage) AddRule(list model.RuleList, rule model.DeviceRule) (model.DeviceRule, error) {
	if rule.ID == "" {
		rule.ID = generateID()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO device_rules
			(id, list, vendor_id, product_id, device_class, manufacturer, product, serial_number, reason, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, string(list),
		nullUint16(rule.VendorID), nullUint16(rule.ProductID), nullUint8(rule.DeviceClass),
		nullString(rule.Manufacturer), nullString(rule.Product), nullString(rule.SerialNumber),
		rule.Reason, rule.Enabled, rule.CreatedAt)
	if err != nil {
		return model.DeviceRule{}, fmt.Errorf("inserting rule: %w", err)
	}
	return rule, nil
}

// ListRules returns all rules in the given list, oldest first.
func (s *Storage) ListRules(list model.RuleList) ([]model.DeviceRule, error) {
	rows, err := s.db.Query(`
		SELECT id, vendor_id, product_id, device_class, manufacturer, product, serial_number, reason, enabled, created_at
		FROM device_rules WHERE list = ? ORDER BY created_at, id`, string(list))
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []model.DeviceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// GetRule looks a rule up by ID across both lists.
func (s *Storage) GetRule(id string) (model.DeviceRule, model.RuleList, error) {
	row := s.db.QueryRow(`
		SELECT id, vendor_id, product_id, device_class, manufacturer, product, serial_number, reason, enabled, created_at, list
		FROM device_rules WHERE id = ?`, id)

	var (
		rule                          model.DeviceRule
		vid, pid, class               sql.NullInt64
		manufacturer, product, serial sql.NullString
		list                          string
	)
	err := row.Scan(&rule.ID, &vid, &pid, &class, &manufacturer, &product, &serial,
		&rule.Reason, &rule.Enabled, &rule.CreatedAt, &list)
	if err == sql.ErrNoRows {
		return model.DeviceRule{}, "", ErrRuleNotFound
	}
	if err != nil {
		return model.DeviceRule{}, "", fmt.Errorf("getting rule: %w", err)
	}
	applyNullFields(&rule, vid, pid, class, manufacturer, product, serial)
	return rule, model.RuleList(list), nil
}

// DeleteRule removes a rule by ID.
func (s *Storage) DeleteRule(id string) error {
	res, err := s.db.Exec(`DELETE FROM device_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// SetRuleEnabled toggles a rule without removing it.
func (s *Storage) SetRuleEnabled(id string, enabled bool) error {
	res, err := s.db.Exec(`UPDATE device_rules SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// SetListEnabled switches blacklist or whitelist mode on or off.
func (s *Storage) SetListEnabled(list model.RuleList, enabled bool) error {
	return s.setSetting(string(list)+"_enabled", strconv.FormatBool(enabled))
}

// LoadPolicy assembles the complete policy set. This is the
// configuration provider contract consumed by the monitoring service.
func (s *Storage) LoadPolicy() (model.PolicySet, error) {
	blacklist, err := s.ListRules(model.Blacklist)
	if err != nil {
		return model.PolicySet{}, err
	}
	whitelist, err := s.ListRules(model.Whitelist)
	if err != nil {
		return model.PolicySet{}, err
	}
	blEnabled, err := s.boolSetting("blacklist_enabled", true)
	if err != nil {
		return model.PolicySet{}, err
	}
	wlEnabled, err := s.boolSetting("whitelist_enabled", false)
	if err != nil {
		return model.PolicySet{}, err
	}
	return model.PolicySet{
		BlacklistEnabled: blEnabled,
		WhitelistEnabled: wlEnabled,
		Blacklist:        blacklist,
		Whitelist:        whitelist,
	}, nil
}

func (s *Storage) setSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (s *Storage) boolSetting(key string, fallback bool) (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading setting %s: %w", key, err)
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid setting %s=%q: %w", key, value, err)
	}
	return parsed, nil
}

func scanRule(rows *sql.Rows) (model.DeviceRule, error) {
	var (
		rule                          model.DeviceRule
		vid, pid, class               sql.NullInt64
		manufacturer, product, serial sql.NullString
	)
	err := rows.Scan(&rule.ID, &vid, &pid, &class, &manufacturer, &product, &serial,
		&rule.Reason, &rule.Enabled, &rule.CreatedAt)
	if err != nil {
		return model.DeviceRule{}, fmt.Errorf("scanning rule: %w", err)
	}
	applyNullFields(&rule, vid, pid, class, manufacturer, product, serial)
	return rule, nil
}

func applyNullFields(rule *model.DeviceRule, vid, pid, class sql.NullInt64, manufacturer, product, serial sql.NullString) {
	if vid.Valid {
		v := uint16(vid.Int64)
		rule.VendorID = &v
	}
	if pid.Valid {
		v := uint16(pid.Int64)
		rule.ProductID = &v
	}
	if class.Valid {
		v := uint8(class.Int64)
		rule.DeviceClass = &v
	}
	if manufacturer.Valid {
		rule.Manufacturer = &manufacturer.String
	}
	if product.Valid {
		rule.Product = &product.String
	}
	if serial.Valid {
		rule.SerialNumber = &serial.String
	}
}

func nullUint16(v *uint16) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullUint8(v *uint8) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
