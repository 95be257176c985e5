package store

import (
	"context"
	"database/sql"
	"time"
)

// NotifyConfiguration is the saved argument set for the notify command,
// used when --args-from-database is requested. Every save appends a new row;
// the latest row is current.
type NotifyConfiguration struct {
	Enabled   bool
	Arguments string
	ChangedAt time.Time
}

// CurrentNotifyConfig returns the latest saved configuration. When none has
// ever been saved, a disabled zero-value configuration is returned.
func (s *Store) CurrentNotifyConfig(ctx context.Context) (NotifyConfiguration, error) {
	var cfg NotifyConfiguration
	err := s.db.QueryRowContext(ctx,
		"SELECT enabled, arguments, changed_at FROM notify_configurations ORDER BY id DESC LIMIT 1",
	).Scan(&cfg.Enabled, &cfg.Arguments, &cfg.ChangedAt)
	if err == sql.ErrNoRows {
		return NotifyConfiguration{}, nil
	}
	if err != nil {
		return NotifyConfiguration{}, err
	}
	return cfg, nil
}

// SaveNotifyConfig appends a new configuration revision.
func (s *Store) SaveNotifyConfig(ctx context.Context, enabled bool, arguments string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO notify_configurations (enabled, arguments, changed_at) VALUES (?, ?, ?)",
		enabled, arguments, time.Now().UTC(),
	)
	return err
}
