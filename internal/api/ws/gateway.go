// Package ws streams fanout topics to browser clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 10 * time.Second
)

// PrincipalResolver turns a bearer token into a principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Principal, error)
}

// Gateway serves GET /ws?topic=...&token=... and relays one topic per connection.
type Gateway struct {
	subscriber events.Subscriber
	topics     events.Topics
	resolver   PrincipalResolver
	store      repository.Store
	origins    []string
	logger     *zap.Logger
}

// GatewayDependencies bundles collaborators.
type GatewayDependencies struct {
	Subscriber     events.Subscriber
	Topics         events.Topics
	Resolver       PrincipalResolver
	Store          repository.Store
	OriginPatterns []string
	Logger         *zap.Logger
}

// NewGateway constructs the gateway.
func NewGateway(deps GatewayDependencies) *Gateway {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Gateway{
		subscriber: deps.Subscriber,
		topics:     deps.Topics,
		resolver:   deps.Resolver,
		store:      deps.Store,
		origins:    deps.OriginPatterns,
		logger:     deps.Logger.Named("ws"),
	}
}

// Handler returns the HTTP mux for the gateway listener.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", g.serveWS)
	return mux
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := g.resolver.Resolve(ctx, bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	topic := r.URL.Query().Get("topic")
	if err := g.authorize(ctx, principal, topic); err != nil {
		writeError(w, err)
		return
	}

	sub, err := g.subscriber.Subscribe(ctx, topic)
	if err != nil {
		g.logger.Error("subscribe failed", zap.String("topic", topic), zap.Error(err))
		writeError(w, apperrors.NewInternalError(err))
		return
	}
	defer sub.Close() //nolint:errcheck

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.origins})
	if err != nil {
		g.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	observability.WSConnections.Inc()
	defer observability.WSConnections.Dec()

	// Clients only listen; CloseRead discards inbound frames and cancels
	// ctx once the peer goes away.
	ctx = conn.CloseRead(ctx)
	g.pump(ctx, conn, sub)
}

func (g *Gateway) pump(ctx context.Context, conn *websocket.Conn, sub events.Subscription) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case event, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "subscription closed") //nolint:errcheck
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				g.logger.Warn("encode event failed", zap.Error(err))
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				g.logger.Debug("dropping slow or closed client", zap.Error(err))
				return
			}
		}
	}
}

// authorize checks that principal may follow topic: its own user channel,
// a request it has standing on, or the room of the entity it works for.
func (g *Gateway) authorize(ctx context.Context, principal *auth.Principal, topic string) error {
	kind, id, ok := g.topics.Parse(topic)
	if !ok {
		return apperrors.NewInvalidPayload("invalid topic", map[string]any{"topic": topic})
	}
	actor := principal.Actor()

	switch kind {
	case events.TopicKindUser:
		if id != actor.UserID {
			return apperrors.NewUnauthorized("cannot follow another user's channel")
		}
	case events.TopicKindEntity:
		if !domain.HasStaffRole(actor) || principal.User.EntityID == nil || *principal.User.EntityID != id {
			return apperrors.NewUnauthorized("cannot follow this entity")
		}
	case events.TopicKindRequest:
		if uuid.Validate(id) != nil {
			return apperrors.NewNotFound("request")
		}
		req, err := g.store.Repos().Requests.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("request")
			}
			return apperrors.MapError(err)
		}
		if !domain.CanReply(actor, req) {
			return apperrors.NewUnauthorized("cannot follow this request")
		}
	}
	return nil
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return token
	}
	return ""
}

func writeError(w http.ResponseWriter, err error) {
	domainErr := apperrors.ToDomainError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domainErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		},
	})
}
