package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "date only",
			input: "2018-06-01",
			want:  time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "date and time",
			input: "2020-10-20 04:00:00",
			want:  time.Date(2020, 10, 20, 4, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339",
			input: "2020-10-20T04:00:00Z",
			want:  time.Date(2020, 10, 20, 4, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not a date")
	require.Error(t, err)
}
