package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

func TestRequestLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	areaA, staffA := w.area("Atención al ciudadano", 3)
	areaB, staffB := w.area("Jurídica", 2)
	proc := w.procedure(areaA.ID, 15)
	citizen := w.citizen()

	// File.
	created, err := w.requests.CreateRequest(ctx, actorOf(citizen), CreateRequestInput{
		ProcedureID: proc.ID,
		Subject:     "Solicitud de certificado",
		Content:     json.RawMessage(`{"texto":"Requiero un certificado de residencia"}`),
	})
	require.NoError(t, err)
	req := created.Request
	assert.Equal(t, "RAD-00001", req.Radicado)
	assert.Equal(t, domain.RequestStatusPending, req.Status)
	require.NotNil(t, req.AssignedToID)
	assert.Equal(t, staffA[0].ID, *req.AssignedToID)
	assert.Equal(t, areaA.ID, *req.CurrentAreaID)
	assert.Equal(t, w.entity.ID, req.EntityID)
	assert.True(t, epoch.AddDate(0, 0, 15).Equal(req.Deadline))
	assert.Equal(t, int64(1), w.cursor(t, areaA.ID))
	assert.Empty(t, created.Warnings)

	stored, err := w.audit.ListEvents(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.AuditKindAssigned, stored[0].Kind)
	assert.Equal(t, "UPD-00001", stored[0].Radicado)
	assert.Equal(t, staffA[0].ID, *stored[0].ActorID)

	// Officer responds.
	w.clock.Advance(time.Hour)
	replied, err := w.requests.ReplyToRequest(ctx, actorOf(staffA[0]), req.ID, ReplyInput{
		Message: "Su solicitud está en revisión",
		Payload: json.RawMessage(`{"texto":"Adjuntamos el formato"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusInReview, replied.Request.Status)
	assert.Equal(t, domain.AuditKindResponse, replied.Event.Kind)

	// Derive to area B.
	w.clock.Advance(time.Hour)
	derived, err := w.requests.DeriveRequest(ctx, actorOf(staffA[0]), req.ID, DeriveRequestInput{ToAreaID: areaB.ID})
	require.NoError(t, err)
	assert.Equal(t, staffB[0].ID, *derived.Request.AssignedToID)
	assert.Equal(t, areaB.ID, *derived.Request.CurrentAreaID)
	assert.Equal(t, domain.RequestStatusInReview, derived.Request.Status)
	assert.Equal(t, domain.AuditKindDerived, derived.Event.Kind)
	assert.Equal(t, areaA.ID, *derived.Event.FromAreaID)
	assert.Equal(t, areaB.ID, *derived.Event.ToAreaID)
	assert.Equal(t, "Solicitud derivada", derived.Event.Message)
	assert.Equal(t, int64(1), w.cursor(t, areaB.ID))
	assert.Equal(t, int64(1), w.cursor(t, areaA.ID))

	// Complete.
	w.clock.Advance(time.Hour)
	completed, err := w.requests.CompleteRequest(ctx, actorOf(staffB[0]), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCompleted, completed.Request.Status)
	require.NotNil(t, completed.Request.ClosedAt)
	assert.Equal(t, domain.AuditKindClosed, completed.Event.Kind)

	// Completing twice is a conflict and writes nothing.
	_, err = w.requests.CompleteRequest(ctx, actorOf(staffB[0]), req.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	final, err := w.store.Repos().Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCompleted, final.Status)

	stored, err = w.audit.ListEvents(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.AuditKind{
		domain.AuditKindClosed,
		domain.AuditKindDerived,
		domain.AuditKindResponse,
		domain.AuditKindAssigned,
	}, kinds(stored))

	// One filing email and one response email went to the citizen.
	mails := w.mailer.all()
	require.Len(t, mails, 2)
	assert.Equal(t, citizen.Email, mails[0].To)
	assert.Equal(t, "Nueva solicitud: Solicitud de certificado", mails[0].Subject)
	assert.Contains(t, mails[0].Body, "Requiero un certificado de residencia")
	assert.Equal(t, "Respuesta a tu solicitud: Solicitud de certificado", mails[1].Subject)
	assert.Contains(t, mails[1].Body, "Adjuntamos el formato")
}

func TestCreateRequestValidation(t *testing.T) {
	w := newWorld(t)
	area, _ := w.area("Atención", 1)
	proc := w.procedure(area.ID, 10)
	citizen := w.citizen()
	ctx := context.Background()

	_, err := w.requests.CreateRequest(ctx, domain.Actor{}, CreateRequestInput{ProcedureID: proc.ID, Subject: "x"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthenticated))

	_, err = w.requests.CreateRequest(ctx, actorOf(citizen), CreateRequestInput{ProcedureID: proc.ID, Subject: "  "})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))

	_, err = w.requests.CreateRequest(ctx, actorOf(citizen), CreateRequestInput{ProcedureID: proc.ID, Subject: "x", Content: json.RawMessage(`{broken`)})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))

	_, err = w.requests.CreateRequest(ctx, actorOf(citizen), CreateRequestInput{ProcedureID: "missing", Subject: "x"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCreateRequestFailuresLeaveNoTrace(t *testing.T) {
	w := newWorld(t)
	empty, _ := w.area("Sin personal", 0)
	proc := w.procedure(empty.ID, 10)
	citizen := w.citizen()
	ctx := context.Background()

	_, err := w.requests.CreateRequest(ctx, actorOf(citizen), CreateRequestInput{ProcedureID: proc.ID, Subject: "x"})
	require.True(t, apperrors.HasCode(err, apperrors.CodeNoEligibleStaff))

	reqs, err := w.inbox.ListCitizenRequests(ctx, actorOf(citizen), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, reqs)

	// The failed attempt consumed no filing number.
	area, _ := w.area("Atención", 1)
	res, err := w.requests.CreateRequest(ctx, actorOf(citizen), CreateRequestInput{ProcedureID: w.procedure(area.ID, 10).ID, Subject: "x"})
	require.NoError(t, err)
	assert.Equal(t, "RAD-00001", res.Request.Radicado)
}

func TestCreateRequestProcedureWithoutArea(t *testing.T) {
	w := newWorld(t)
	citizen := w.citizen()
	proc := w.store.SeedProcedure(domain.Procedure{Name: "Sin área", EntityID: w.entity.ID, MaxResponseDays: 10})

	_, err := w.requests.CreateRequest(context.Background(), actorOf(citizen), CreateRequestInput{ProcedureID: proc.ID, Subject: "x"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCreateRequestRetriesAfterCodeCollision(t *testing.T) {
	w := newWorld(t)
	area, _ := w.area("Atención", 1)
	proc := w.procedure(area.ID, 10)
	citizen := w.citizen()

	// A row written outside the counter already holds RAD-00001.
	w.store.SeedRequest(domain.Request{Radicado: "RAD-00001", EntityID: w.entity.ID, CreatedAt: epoch.Add(-time.Hour)})

	res, err := w.requests.CreateRequest(context.Background(), actorOf(citizen), CreateRequestInput{ProcedureID: proc.ID, Subject: "x"})
	require.NoError(t, err)
	assert.Equal(t, "RAD-00002", res.Request.Radicado)
}

func TestCreateRequestMailFailureIsAWarning(t *testing.T) {
	w := newWorld(t)
	w.mailer.err = errMailDown
	area, _ := w.area("Atención", 1)
	citizen := w.citizen()

	res, err := w.requests.CreateRequest(context.Background(), actorOf(citizen), CreateRequestInput{ProcedureID: w.procedure(area.ID, 10).ID, Subject: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{warningEmailFailed}, res.Warnings)

	stored, err := w.store.Repos().Requests.GetByID(context.Background(), res.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, stored.Status)
}

func TestCreateRequestPublishesToEntityRoom(t *testing.T) {
	w := newWorld(t)
	area, _ := w.area("Atención", 1)
	citizen := w.citizen()

	sub, err := w.bus.Subscribe(context.Background(), w.topics.Entity(w.entity.ID))
	require.NoError(t, err)
	defer sub.Close()

	req := w.file(t, citizen, w.procedure(area.ID, 10))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, events.EventRequestCreated, ev.Type)
		assert.Equal(t, req.ID, ev.RequestID)
		assert.Equal(t, req.Radicado, ev.Radicado)
	case <-time.After(time.Second):
		t.Fatal("no request.created event")
	}
}

func TestReplyStanding(t *testing.T) {
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	citizen := w.citizen()
	stranger := w.store.SeedUser(domain.User{FullName: "Otro", Email: "otro@example.com", Role: domain.RoleCitizen, Active: true})
	admin := w.staff(domain.RoleAdmin, area.ID)
	req := w.file(t, citizen, w.procedure(area.ID, 10))
	ctx := context.Background()

	_, err := w.requests.ReplyToRequest(ctx, actorOf(stranger), req.ID, ReplyInput{Message: "hola"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	res, err := w.requests.ReplyToRequest(ctx, actorOf(citizen), req.ID, ReplyInput{Message: "más datos"})
	require.NoError(t, err)
	assert.Equal(t, domain.AuditKindUserReply, res.Event.Kind)
	assert.Equal(t, domain.RequestStatusPending, res.Request.Status, "citizen replies do not move the status")

	res, err = w.requests.ReplyToRequest(ctx, actorOf(admin), req.ID, ReplyInput{Message: "revisado"})
	require.NoError(t, err)
	assert.Equal(t, domain.AuditKindResponse, res.Event.Kind)
	assert.Equal(t, domain.RequestStatusInReview, res.Request.Status)

	res, err = w.requests.ReplyToRequest(ctx, actorOf(officers[0]), req.ID, ReplyInput{Message: "seguimos"})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusInReview, res.Request.Status)

	_, err = w.requests.ReplyToRequest(ctx, actorOf(citizen), req.ID, ReplyInput{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))

	_, err = w.requests.ReplyToRequest(ctx, actorOf(citizen), "missing", ReplyInput{Message: "x"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestReplyWithDataOnly(t *testing.T) {
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	citizen := w.citizen()
	req := w.file(t, citizen, w.procedure(area.ID, 10))

	res, err := w.requests.ReplyToRequest(context.Background(), actorOf(officers[0]), req.ID, ReplyInput{
		Payload: json.RawMessage(`{"texto":"Respuesta formal"}`),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Event.Message)

	mails := w.mailer.all()
	last := mails[len(mails)-1]
	assert.True(t, strings.Contains(last.Body, "Respuesta formal"))
}

func TestReplyOverdueRequestMovesBackToReview(t *testing.T) {
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	citizen := w.citizen()
	proc := w.procedure(area.ID, 1)
	req := w.file(t, citizen, proc)

	w.clock.Advance(48 * time.Hour)
	_, err := w.store.Repos().Requests.MarkOverdue(context.Background(), w.clock.Now())
	require.NoError(t, err)

	res, err := w.requests.ReplyToRequest(context.Background(), actorOf(officers[0]), req.ID, ReplyInput{Message: "atendido"})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusInReview, res.Request.Status)
}

func TestTerminalRequestRejectsChanges(t *testing.T) {
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	other, _ := w.area("Jurídica", 1)
	citizen := w.citizen()
	req := w.file(t, citizen, w.procedure(area.ID, 10))
	ctx := context.Background()

	_, err := w.requests.CompleteRequest(ctx, actorOf(officers[0]), req.ID)
	require.NoError(t, err)

	_, err = w.requests.ReplyToRequest(ctx, actorOf(citizen), req.ID, ReplyInput{Message: "¿y?"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = w.requests.DeriveRequest(ctx, actorOf(officers[0]), req.ID, DeriveRequestInput{ToAreaID: other.ID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, int64(0), w.cursor(t, other.ID))
}

func TestManagementRequiresStaff(t *testing.T) {
	w := newWorld(t)
	area, _ := w.area("Atención", 1)
	other, _ := w.area("Jurídica", 1)
	citizen := w.citizen()
	req := w.file(t, citizen, w.procedure(area.ID, 10))
	ctx := context.Background()

	_, err := w.requests.DeriveRequest(ctx, actorOf(citizen), req.ID, DeriveRequestInput{ToAreaID: other.ID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = w.requests.CompleteRequest(ctx, actorOf(citizen), req.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestDeriveToAreaWithoutStaffKeepsRequest(t *testing.T) {
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	empty, _ := w.area("Vacía", 0)
	citizen := w.citizen()
	req := w.file(t, citizen, w.procedure(area.ID, 10))
	ctx := context.Background()

	_, err := w.requests.DeriveRequest(ctx, actorOf(officers[0]), req.ID, DeriveRequestInput{ToAreaID: empty.ID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoEligibleStaff))

	stored, err := w.store.Repos().Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, area.ID, *stored.CurrentAreaID)
	assert.Equal(t, officers[0].ID, *stored.AssignedToID)

	_, err = w.requests.DeriveRequest(ctx, actorOf(officers[0]), req.ID, DeriveRequestInput{ToAreaID: "missing"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestGetHistoryStanding(t *testing.T) {
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	citizen := w.citizen()
	stranger := w.store.SeedUser(domain.User{FullName: "Otro", Email: "otro@example.com", Role: domain.RoleCitizen, Active: true})
	req := w.file(t, citizen, w.procedure(area.ID, 10))
	ctx := context.Background()

	_, err := w.requests.GetHistory(ctx, actorOf(stranger), req.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = w.requests.UnreadCount(ctx, domain.Actor{}, req.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthenticated))

	n, err := w.requests.UnreadCount(ctx, actorOf(citizen), req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	h, err := w.requests.GetHistory(ctx, actorOf(officers[0]), req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.MarkedRead, "the officer authored the only event")
}

var errCommitFailed = errors.New("commit failed")

// commitFailingStore runs the unit of work and then fails as a broken commit would.
type commitFailingStore struct {
	repository.Store
}

func (s commitFailingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := fn(ctx, repos); err != nil {
			return err
		}
		return errCommitFailed
	})
}

func TestTransitionsCountedOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	proc := w.procedure(area.ID, 10)
	req := w.file(t, w.citizen(), proc)

	broken := NewRequestService(RequestDependencies{
		Store:     commitFailingStore{Store: w.store},
		Sequences: w.sequences,
		Assigner:  NewRoundRobinAssigner(nil),
		Audit:     w.audit,
		Clock:     w.clock,
	})
	toReview := observability.TransitionsTotal.WithLabelValues(string(domain.RequestStatusPending), string(domain.RequestStatusInReview))
	toDone := observability.TransitionsTotal.WithLabelValues(string(domain.RequestStatusPending), string(domain.RequestStatusCompleted))
	reviewBefore, doneBefore := testutil.ToFloat64(toReview), testutil.ToFloat64(toDone)

	_, err := broken.ReplyToRequest(ctx, actorOf(officers[0]), req.ID, ReplyInput{Message: "en trámite"})
	require.ErrorIs(t, err, errCommitFailed)
	_, err = broken.CompleteRequest(ctx, actorOf(officers[0]), req.ID)
	require.ErrorIs(t, err, errCommitFailed)

	assert.Equal(t, reviewBefore, testutil.ToFloat64(toReview))
	assert.Equal(t, doneBefore, testutil.ToFloat64(toDone))
	stored, err := w.store.Repos().Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, stored.Status)

	_, err = w.requests.CompleteRequest(ctx, actorOf(officers[0]), req.ID)
	require.NoError(t, err)
	assert.Equal(t, doneBefore+1, testutil.ToFloat64(toDone))
}
