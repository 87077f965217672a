package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// Assignment is the outcome of one round-robin pick.
type Assignment struct {
	Area     domain.Area
	Assignee domain.User
	// Cursor is the value the pick was made with; the area now holds Cursor+1.
	Cursor int64
}

// RoundRobinAssigner rotates new and derived requests across an area's officers.
type RoundRobinAssigner struct {
	logger *zap.Logger
}

// NewRoundRobinAssigner creates the assigner.
func NewRoundRobinAssigner(logger *zap.Logger) *RoundRobinAssigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoundRobinAssigner{logger: logger}
}

// Assign picks the next officer of areaID and advances the area cursor.
// repos must belong to an open transaction: the area row stays locked until
// it ends, so concurrent calls for one area never observe the same cursor.
func (a *RoundRobinAssigner) Assign(ctx context.Context, repos repository.Repositories, areaID string) (*Assignment, error) {
	area, err := repos.Areas.LockByID(ctx, areaID)
	if err != nil {
		return nil, repoError(err, "area")
	}

	roster, err := repos.Users.ListActiveOfficersByArea(ctx, areaID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	assignee, err := PickRoundRobin(roster, area.LastAssignedIndex)
	if err != nil {
		observability.AssignmentsTotal.WithLabelValues("no_eligible_staff").Inc()
		a.logger.Warn("no eligible staff", zap.String("area_id", areaID))
		return nil, err
	}

	cursor := area.LastAssignedIndex
	if err := repos.Areas.UpdateCursor(ctx, areaID, cursor+1); err != nil {
		return nil, repoError(err, "area")
	}
	area.LastAssignedIndex = cursor + 1

	observability.AssignmentsTotal.WithLabelValues("assigned").Inc()
	a.logger.Debug("request assigned",
		zap.String("area_id", areaID),
		zap.String("assignee_id", assignee.ID),
		zap.Int64("cursor", cursor),
		zap.Int("roster_size", len(roster)),
	)
	return &Assignment{Area: *area, Assignee: assignee, Cursor: cursor}, nil
}

// PickRoundRobin returns roster[cursor mod len(roster)].
func PickRoundRobin(roster []domain.User, cursor int64) (domain.User, error) {
	if len(roster) == 0 {
		return domain.User{}, apperrors.NewNoEligibleStaff()
	}
	if cursor < 0 {
		cursor = 0
	}
	return roster[cursor%int64(len(roster))], nil
}
