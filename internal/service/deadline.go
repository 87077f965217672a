package service

import (
	"time"

	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// Deadline adds maxResponseDays calendar days to createdAt, keeping the
// time-of-day. Month and year rollover follow time.AddDate.
func Deadline(createdAt time.Time, maxResponseDays int) (time.Time, error) {
	if maxResponseDays < 0 {
		return time.Time{}, apperrors.NewInvalidPayload("response budget must not be negative", map[string]any{
			"max_response_days": maxResponseDays,
		})
	}
	return createdAt.AddDate(0, 0, maxResponseDays), nil
}
