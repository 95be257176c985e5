package store

import (
	"context"
	"fmt"
	"time"
)

// Certificate is one course-run certificate record, joined with its owner's
// username.
type Certificate struct {
	UserID   int64
	Username string
	CourseID string
	Mode     string
	Status   string
	Modified time.Time
}

// UpsertCertificate inserts or replaces the certificate for (user, course).
func (s *Store) UpsertCertificate(ctx context.Context, cert Certificate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO certificates (user_id, course_id, mode, status, modified)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, course_id) DO UPDATE SET
			mode = excluded.mode,
			status = excluded.status,
			modified = excluded.modified`,
		cert.UserID, cert.CourseID, cert.Mode, cert.Status, cert.Modified,
	)
	return err
}

// CountCertificates returns how many certificates match the filter.
func (s *Store) CountCertificates(ctx context.Context, f RecordFilter) (int, error) {
	where, args := f.where()
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM certificates"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count certificates: %w", err)
	}
	return count, nil
}

// Certificates returns one page of certificates matching the filter, ordered
// by modification time.
func (s *Store) Certificates(ctx context.Context, f RecordFilter, limit, offset int) ([]Certificate, error) {
	where, args := f.where()
	query := `SELECT c.user_id, u.username, c.course_id, c.mode, c.status, c.modified
		FROM certificates c JOIN users u ON u.id = c.user_id` + where +
		" ORDER BY c.modified, c.id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query certificates: %w", err)
	}
	defer rows.Close()

	var certs []Certificate
	for rows.Next() {
		var c Certificate
		if err := rows.Scan(&c.UserID, &c.Username, &c.CourseID, &c.Mode, &c.Status, &c.Modified); err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, c)
	}
	return certs, rows.Err()
}
