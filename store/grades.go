package store

import (
	"context"
	"fmt"
	"time"
)

// Grade is one persistent course grade record, joined with its owner's
// username.
type Grade struct {
	UserID       int64
	Username     string
	CourseID     string
	LetterGrade  string
	PercentGrade float64
	Modified     time.Time
}

// UpsertGrade inserts or replaces the grade for (user, course).
func (s *Store) UpsertGrade(ctx context.Context, grade Grade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO course_grades (user_id, course_id, letter_grade, percent_grade, modified)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, course_id) DO UPDATE SET
			letter_grade = excluded.letter_grade,
			percent_grade = excluded.percent_grade,
			modified = excluded.modified`,
		grade.UserID, grade.CourseID, grade.LetterGrade, grade.PercentGrade, grade.Modified,
	)
	return err
}

// CountGrades returns how many grades match the filter.
func (s *Store) CountGrades(ctx context.Context, f RecordFilter) (int, error) {
	where, args := f.where()
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM course_grades"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count grades: %w", err)
	}
	return count, nil
}

// Grades returns one page of grades matching the filter, ordered by
// modification time.
func (s *Store) Grades(ctx context.Context, f RecordFilter, limit, offset int) ([]Grade, error) {
	where, args := f.where()
	query := `SELECT g.user_id, u.username, g.course_id, g.letter_grade, g.percent_grade, g.modified
		FROM course_grades g JOIN users u ON u.id = g.user_id` + where +
		" ORDER BY g.modified, g.id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grades: %w", err)
	}
	defer rows.Close()

	var grades []Grade
	for rows.Next() {
		var g Grade
		if err := rows.Scan(&g.UserID, &g.Username, &g.CourseID, &g.LetterGrade, &g.PercentGrade, &g.Modified); err != nil {
			return nil, fmt.Errorf("failed to scan grade: %w", err)
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}
