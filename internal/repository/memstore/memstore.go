// Package memstore is an in-memory repository.Store used by tests and by
// deployments without a database. Transactions run against a private copy of
// the state that replaces the live state on success, so a failing unit of
// work leaves nothing behind.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

type state struct {
	entities   map[string]domain.Entity
	areas      map[string]domain.Area
	procedures map[string]domain.Procedure
	users      map[string]domain.User
	requests   map[string]domain.Request
	events     map[string][]domain.AuditEvent
	external   map[string]domain.ExternalRequest
	sequences  map[domain.SequenceStream]int64
	eventSeq   int64
}

func newState() *state {
	return &state{
		entities:   map[string]domain.Entity{},
		areas:      map[string]domain.Area{},
		procedures: map[string]domain.Procedure{},
		users:      map[string]domain.User{},
		requests:   map[string]domain.Request{},
		events:     map[string][]domain.AuditEvent{},
		external:   map[string]domain.ExternalRequest{},
		sequences:  map[domain.SequenceStream]int64{},
	}
}

func (s *state) clone() *state {
	out := &state{
		entities:   cloneMap(s.entities),
		areas:      cloneMap(s.areas),
		procedures: cloneMap(s.procedures),
		users:      cloneMap(s.users),
		requests:   cloneMap(s.requests),
		events:     make(map[string][]domain.AuditEvent, len(s.events)),
		external:   cloneMap(s.external),
		sequences:  cloneMap(s.sequences),
		eventSeq:   s.eventSeq,
	}
	for k, v := range s.events {
		out.events[k] = slices.Clone(v)
	}
	return out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store implements repository.Store over process memory.
type Store struct {
	mu      sync.Mutex
	st      *state
	created time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), created: time.Now().UTC()}
}

// Repos returns repositories that each lock the store per call.
func (s *Store) Repos() repository.Repositories {
	return s.bind(nil)
}

// WithinTx serializes fn against every other unit of work and commits its
// changes only when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, s.bind(work)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) bind(tx *state) repository.Repositories {
	h := &handle{store: s, tx: tx}
	return repository.Repositories{
		Requests:   &requestRepo{h},
		Events:     &eventRepo{h},
		Areas:      &areaRepo{h},
		Procedures: &procedureRepo{h},
		Users:      &userRepo{h},
		Sequences:  &sequenceRepo{h},
		External:   &externalRepo{h},
		Entities:   &entityRepo{h},
	}
}

type handle struct {
	store *Store
	tx    *state
}

// view runs fn on the transaction state, or on the live state under the store lock.
func (h *handle) view(fn func(st *state) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return fn(h.store.st)
}

// SeedEntity stores an entity, assigning an ID when empty.
func (s *Store) SeedEntity(e domain.Entity) domain.Entity {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.entities[e.ID] = e
	return e
}

// SeedArea stores an area, assigning an ID when empty.
func (s *Store) SeedArea(a domain.Area) domain.Area {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.created
		a.UpdatedAt = s.created
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.areas[a.ID] = a
	return a
}

// SeedProcedure stores a procedure, assigning an ID when empty.
func (s *Store) SeedProcedure(p domain.Procedure) domain.Procedure {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.procedures[p.ID] = p
	return p
}

// SeedUser stores a user. Users without CreatedAt are stamped in insertion order.
func (s *Store) SeedUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.putUser(&u, s.created)
	return u
}

// SeedRequest stores a request as-is. Intended for fixtures.
func (s *Store) SeedRequest(r domain.Request) domain.Request {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.requests[r.ID] = r
	return r
}

func (st *state) putUser(u *domain.User, base time.Time) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = base.Add(time.Duration(len(st.users)+1) * time.Millisecond)
		u.UpdatedAt = u.CreatedAt
	}
	st.users[u.ID] = *u
}
