package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

func TestInboxListings(t *testing.T) {
	w := newWorld(t)
	area, officers := w.area("Atención", 2)
	proc := w.procedure(area.ID, 10)
	citizen := w.citizen()
	ctx := context.Background()

	first := w.file(t, citizen, proc)
	w.clock.Advance(time.Minute)
	second := w.file(t, citizen, proc)
	w.clock.Advance(time.Minute)
	third := w.file(t, citizen, proc)

	_, err := w.requests.CompleteRequest(ctx, actorOf(officers[0]), third.ID)
	require.NoError(t, err)

	mine, err := w.inbox.ListAssigned(ctx, actorOf(officers[0]), ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID, "newest first")
	assert.Equal(t, first.ID, mine[1].ID)

	open, err := w.inbox.ListAssigned(ctx, actorOf(officers[0]), ListFilter{Statuses: []domain.RequestStatus{domain.RequestStatusPending}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, first.ID, open[0].ID)

	filed, err := w.inbox.ListCitizenRequests(ctx, actorOf(citizen), ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, filed, 2)
	assert.Equal(t, third.ID, filed[0].ID)
	assert.Equal(t, second.ID, filed[1].ID)

	counts, err := w.inbox.CountCitizenRequestsByStatus(ctx, actorOf(citizen))
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.RequestStatusPending])
	assert.Equal(t, int64(1), counts[domain.RequestStatusCompleted])
	assert.Equal(t, int64(0), counts[domain.RequestStatusOverdue])
}

func TestInboxCountPublishesBadge(t *testing.T) {
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	citizen := w.citizen()
	w.file(t, citizen, w.procedure(area.ID, 10))

	sub, err := w.bus.Subscribe(context.Background(), w.topics.User(officers[0].ID))
	require.NoError(t, err)
	defer sub.Close()

	counts, err := w.inbox.CountAssignedByStatus(context.Background(), actorOf(officers[0]))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.RequestStatusPending])

	select {
	case ev := <-sub.Events():
		assert.Equal(t, events.EventStatusCounts, ev.Type)
		payload, ok := ev.Payload.(events.StatusCountsPayload)
		require.True(t, ok)
		assert.Equal(t, ScopeAssigned, payload.Scope)
		assert.Equal(t, int64(1), payload.Counts[domain.RequestStatusPending])
	case <-time.After(time.Second):
		t.Fatal("no status count event")
	}
}

func TestInboxGuards(t *testing.T) {
	w := newWorld(t)
	citizen := w.citizen()
	ctx := context.Background()

	_, err := w.inbox.ListAssigned(ctx, actorOf(citizen), ListFilter{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = w.inbox.CountAssignedByStatus(ctx, actorOf(citizen))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = w.inbox.ListCitizenRequests(ctx, domain.Actor{}, ListFilter{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthenticated))

	_, err = w.inbox.ListCitizenRequests(ctx, actorOf(citizen), ListFilter{Statuses: []domain.RequestStatus{"ARCHIVED"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))
}
