package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

func TestDeadline(t *testing.T) {
	cases := []struct {
		name    string
		created time.Time
		days    int
		want    time.Time
	}{
		{"month boundary", time.Date(2024, 1, 30, 9, 30, 0, 0, time.UTC), 5, time.Date(2024, 2, 4, 9, 30, 0, 0, time.UTC)},
		{"year boundary", time.Date(2023, 12, 29, 23, 0, 0, 0, time.UTC), 5, time.Date(2024, 1, 3, 23, 0, 0, 0, time.UTC)},
		{"leap day", time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC), 2, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"zero budget", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), 0, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"fifteen days", time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC), 15, time.Date(2024, 4, 4, 8, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Deadline(tc.created, tc.days)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
		})
	}
}

func TestDeadlineRejectsNegativeBudget(t *testing.T) {
	_, err := Deadline(time.Now(), -1)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))
}
