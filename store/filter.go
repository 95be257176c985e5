package store

import (
	"strings"
	"time"
)

// RecordFilter narrows certificate and grade queries. Zero-value fields are
// ignored; an empty filter matches everything.
type RecordFilter struct {
	CourseIDs []string
	Start     *time.Time
	End       *time.Time
	UserIDs   []int64
}

// where builds the WHERE clause fragment and its arguments for the filter.
// Returns an empty string when no conditions apply.
func (f RecordFilter) where() (string, []any) {
	var conds []string
	var args []any

	if len(f.CourseIDs) > 0 {
		conds = append(conds, "course_id IN ("+placeholders(len(f.CourseIDs))+")")
		for _, id := range f.CourseIDs {
			args = append(args, id)
		}
	}
	if f.Start != nil {
		conds = append(conds, "modified >= ?")
		args = append(args, f.Start)
	}
	if f.End != nil {
		conds = append(conds, "modified <= ?")
		args = append(args, f.End)
	}
	if len(f.UserIDs) > 0 {
		conds = append(conds, "user_id IN ("+placeholders(len(f.UserIDs))+")")
		for _, id := range f.UserIDs {
			args = append(args, id)
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
