package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/repository/memstore"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

type stubResolver map[string]*auth.Principal

func (r stubResolver) Resolve(_ context.Context, token string) (*auth.Principal, error) {
	if p, ok := r[token]; ok {
		return p, nil
	}
	return nil, apperrors.NewUnauthenticated("invalid token")
}

type gatewayFixture struct {
	server  *httptest.Server
	bus     *events.LocalBus
	topics  events.Topics
	request domain.Request
	entity  string
	citizen *auth.Principal
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	store := memstore.New()
	bus := events.NewLocalBus()
	t.Cleanup(func() { _ = bus.Close() })
	topics := events.NewTopics("pqrs")

	entityID := "entity-1"
	citizen := store.SeedUser(domain.User{FullName: "Ana", Role: domain.RoleCitizen, Active: true})
	stranger := store.SeedUser(domain.User{FullName: "Otro", Role: domain.RoleCitizen, Active: true})
	officer := store.SeedUser(domain.User{FullName: "Luis", Role: domain.RoleOfficer, EntityID: &entityID, Active: true})
	req := store.SeedRequest(domain.Request{Radicado: "RAD-00001", CitizenID: citizen.ID, EntityID: entityID, Status: domain.RequestStatusPending})

	f := &gatewayFixture{
		bus:     bus,
		topics:  topics,
		request: req,
		entity:  entityID,
		citizen: &auth.Principal{User: &citizen, Role: citizen.Role},
	}
	gateway := NewGateway(GatewayDependencies{
		Subscriber: bus,
		Topics:     topics,
		Store:      store,
		Resolver: stubResolver{
			"citizen":  f.citizen,
			"stranger": {User: &stranger, Role: stranger.Role},
			"officer":  {User: &officer, Role: officer.Role},
		},
	})
	f.server = httptest.NewServer(gateway.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *gatewayFixture) url(topic, token string) string {
	q := url.Values{"topic": {topic}, "token": {token}}
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + q.Encode()
}

func (f *gatewayFixture) status(t *testing.T, topic, token string) int {
	t.Helper()
	q := url.Values{"topic": {topic}, "token": {token}}
	resp, err := http.Get(f.server.URL + "/ws?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestGatewayRelaysRequestEvents(t *testing.T) {
	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, f.url(f.topics.Request(f.request.ID), "citizen"), nil)
	require.NoError(t, err)
	defer conn.CloseNow() //nolint:errcheck

	require.NoError(t, f.bus.Publish(ctx, f.topics.Request(f.request.ID), events.Event{
		ID:        "evt-1",
		Type:      events.EventRequestUpdated,
		RequestID: f.request.ID,
		Radicado:  f.request.Radicado,
	}))

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var event events.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, events.EventRequestUpdated, event.Type)
	assert.Equal(t, "RAD-00001", event.Radicado)
}

func TestGatewayClosesWhenBusStops(t *testing.T) {
	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, f.url(f.topics.User(f.citizen.User.ID), "citizen"), nil)
	require.NoError(t, err)
	defer conn.CloseNow() //nolint:errcheck

	require.NoError(t, f.bus.Close())

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestGatewayAuthorization(t *testing.T) {
	f := newGatewayFixture(t)

	tests := []struct {
		name  string
		topic string
		token string
		want  int
	}{
		{"missing token", f.topics.Request(f.request.ID), "", http.StatusUnauthorized},
		{"bad token", f.topics.Request(f.request.ID), "forged", http.StatusUnauthorized},
		{"foreign prefix", "other.request." + f.request.ID, "citizen", http.StatusBadRequest},
		{"wildcard", "pqrs.request.*", "citizen", http.StatusBadRequest},
		{"stranger on request", f.topics.Request(f.request.ID), "stranger", http.StatusForbidden},
		{"unknown request", f.topics.Request(uuid.NewString()), "citizen", http.StatusNotFound},
		{"malformed request id", f.topics.Request("missing"), "citizen", http.StatusNotFound},
		{"another user channel", f.topics.User("someone-else"), "citizen", http.StatusForbidden},
		{"citizen on entity room", f.topics.Entity(f.entity), "citizen", http.StatusForbidden},
		{"officer on other entity", f.topics.Entity("entity-2"), "officer", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.status(t, tt.topic, tt.token))
		})
	}
}

func TestGatewayEntityRoomForStaff(t *testing.T) {
	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, f.url(f.topics.Entity(f.entity), "officer"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck

	require.NoError(t, f.bus.Publish(ctx, f.topics.Entity(f.entity), events.Event{ID: "evt-2", Type: events.EventRequestCreated}))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"evt-2"`)
}
