package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/clock"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/repository/memstore"
)

var epoch = time.Date(2024, time.January, 30, 14, 0, 0, 0, time.UTC)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) all() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type world struct {
	store         *memstore.Store
	clock         *clock.Manual
	bus           *events.LocalBus
	topics        events.Topics
	mailer        *recordingMailer
	sequences     *SequenceGenerator
	audit         *AuditService
	notifications *NotificationService
	requests      *RequestService
	inbox         *InboxService
	external      *ExternalRequestService
	entity        domain.Entity
}

func newWorld(t *testing.T) *world {
	t.Helper()

	store := memstore.New()
	clk := clock.NewManual(epoch)
	bus := events.NewLocalBus()
	t.Cleanup(func() { _ = bus.Close() })
	topics := events.NewTopics("pqrs")
	fanout := events.NewFanout(bus, topics, nil)
	mailer := &recordingMailer{}

	sequences := NewSequenceGenerator(store, nil)
	require.NoError(t, sequences.Bootstrap(context.Background()))
	audit := NewAuditService(AuditDependencies{Store: store, Sequences: sequences, Clock: clk})
	notifications := NewNotificationService(NotificationDependencies{Store: store, Mailer: mailer})

	return &world{
		store:         store,
		clock:         clk,
		bus:           bus,
		topics:        topics,
		mailer:        mailer,
		sequences:     sequences,
		audit:         audit,
		notifications: notifications,
		requests: NewRequestService(RequestDependencies{
			Store:         store,
			Sequences:     sequences,
			Assigner:      NewRoundRobinAssigner(nil),
			Audit:         audit,
			Notifications: notifications,
			Fanout:        fanout,
			Clock:         clk,
		}),
		inbox: NewInboxService(store, fanout, nil),
		external: NewExternalRequestService(ExternalRequestDependencies{
			Store:     store,
			Sequences: sequences,
			Clock:     clk,
		}),
		entity: store.SeedEntity(domain.Entity{Name: "Alcaldía de Prueba", ImgURL: "https://example.com/logo.png"}),
	}
}

// area seeds an area with n active officers, returned in roster order.
func (w *world) area(name string, n int) (domain.Area, []domain.User) {
	area := w.store.SeedArea(domain.Area{Name: name, EntityID: w.entity.ID})
	officers := make([]domain.User, 0, n)
	for i := 0; i < n; i++ {
		officers = append(officers, w.staff(domain.RoleOfficer, area.ID))
	}
	return area, officers
}

func (w *world) staff(role domain.Role, areaID string) domain.User {
	entityID := w.entity.ID
	area := areaID
	return w.store.SeedUser(domain.User{
		FullName: string(role) + " user",
		Email:    string(role) + "-" + areaID[:8] + "@example.com",
		Role:     role,
		EntityID: &entityID,
		AreaID:   &area,
		Active:   true,
	})
}

func (w *world) procedure(areaID string, days int) domain.Procedure {
	return w.store.SeedProcedure(domain.Procedure{
		Name:            "Derecho de petición",
		EntityID:        w.entity.ID,
		AreaID:          &areaID,
		MaxResponseDays: days,
	})
}

func (w *world) citizen() domain.User {
	return w.store.SeedUser(domain.User{
		FullName: "Ana Ciudadana",
		Email:    "ana@example.com",
		Role:     domain.RoleCitizen,
		Active:   true,
	})
}

func (w *world) cursor(t *testing.T, areaID string) int64 {
	t.Helper()
	area, err := w.store.Repos().Areas.GetByID(context.Background(), areaID)
	require.NoError(t, err)
	return area.LastAssignedIndex
}

func (w *world) file(t *testing.T, citizen domain.User, proc domain.Procedure) *domain.Request {
	t.Helper()
	res, err := w.requests.CreateRequest(context.Background(), actorOf(citizen), CreateRequestInput{
		ProcedureID: proc.ID,
		Subject:     "Solicitud de información",
		Content:     []byte(`{"texto":"Necesito el certificado"}`),
	})
	require.NoError(t, err)
	return res.Request
}

func actorOf(u domain.User) domain.Actor {
	return domain.Actor{UserID: u.ID, Role: u.Role}
}

func kinds(evts []domain.AuditEvent) []domain.AuditKind {
	out := make([]domain.AuditKind, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Kind)
	}
	return out
}

var errMailDown = errors.New("smtp unavailable")
