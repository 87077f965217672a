package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

type requestRepo struct{ h *handle }

func (r *requestRepo) Create(_ context.Context, req *domain.Request) error {
	return r.h.view(func(st *state) error {
		for _, existing := range st.requests {
			if existing.Radicado == req.Radicado {
				return repository.ErrDuplicate
			}
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		st.requests[req.ID] = *req
		return nil
	})
}

func (r *requestRepo) Update(_ context.Context, req *domain.Request) error {
	return r.h.view(func(st *state) error {
		current, ok := st.requests[req.ID]
		if !ok {
			return repository.ErrNotFound
		}
		current.Status = req.Status
		current.AssignedToID = req.AssignedToID
		current.CurrentAreaID = req.CurrentAreaID
		current.UpdatedAt = req.UpdatedAt
		current.ClosedAt = req.ClosedAt
		st.requests[req.ID] = current
		return nil
	})
}

func (r *requestRepo) GetByID(_ context.Context, id string) (*domain.Request, error) {
	var out *domain.Request
	err := r.h.view(func(st *state) error {
		req, ok := st.requests[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r *requestRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Request, error) {
	return r.GetByID(ctx, id)
}

func (r *requestRepo) List(_ context.Context, filter repository.RequestFilter) ([]domain.Request, error) {
	var out []domain.Request
	err := r.h.view(func(st *state) error {
		matched := filterRequests(st, filter)
		slices.SortFunc(matched, func(a, b domain.Request) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		limit, offset := page(filter.Limit, filter.Offset)
		if offset >= len(matched) {
			return nil
		}
		end := min(offset+limit, len(matched))
		out = matched[offset:end]
		return nil
	})
	return out, err
}

func (r *requestRepo) CountByStatus(_ context.Context, filter repository.RequestFilter) (map[domain.RequestStatus]int64, error) {
	counts := make(map[domain.RequestStatus]int64, len(domain.AllRequestStatuses))
	for _, status := range domain.AllRequestStatuses {
		counts[status] = 0
	}
	err := r.h.view(func(st *state) error {
		for _, req := range filterRequests(st, filter) {
			counts[req.Status]++
		}
		return nil
	})
	return counts, err
}

func (r *requestRepo) MarkOverdue(_ context.Context, now time.Time) ([]domain.Request, error) {
	var promoted []domain.Request
	err := r.h.view(func(st *state) error {
		for id, req := range st.requests {
			if !isOpen(req.Status) || !req.Deadline.Before(now) {
				continue
			}
			req.Status = domain.RequestStatusOverdue
			req.UpdatedAt = now
			st.requests[id] = req
			promoted = append(promoted, req)
		}
		return nil
	})
	sortByDeadline(promoted)
	return promoted, err
}

func (r *requestRepo) ListOpenDueBetween(_ context.Context, from, to time.Time) ([]domain.Request, error) {
	var due []domain.Request
	err := r.h.view(func(st *state) error {
		for _, req := range st.requests {
			if isOpen(req.Status) && !req.Deadline.Before(from) && req.Deadline.Before(to) {
				due = append(due, req)
			}
		}
		return nil
	})
	sortByDeadline(due)
	return due, err
}

func (r *requestRepo) LatestRadicado(_ context.Context) (string, error) {
	var code string
	err := r.h.view(func(st *state) error {
		var latest time.Time
		for _, req := range st.requests {
			if code == "" || req.CreatedAt.After(latest) {
				code, latest = req.Radicado, req.CreatedAt
			}
		}
		return nil
	})
	return code, err
}

func filterRequests(st *state, filter repository.RequestFilter) []domain.Request {
	var out []domain.Request
	for _, req := range st.requests {
		if filter.CitizenID != nil && req.CitizenID != *filter.CitizenID {
			continue
		}
		if filter.AssignedToID != nil && !req.IsAssignedTo(*filter.AssignedToID) {
			continue
		}
		if filter.EntityID != nil && req.EntityID != *filter.EntityID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, req.Status) {
			continue
		}
		out = append(out, req)
	}
	return out
}

func isOpen(status domain.RequestStatus) bool {
	return slices.Contains(domain.OpenStatuses, status)
}

func sortByDeadline(reqs []domain.Request) {
	slices.SortFunc(reqs, func(a, b domain.Request) int {
		if c := a.Deadline.Compare(b.Deadline); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type eventRepo struct{ h *handle }

func (r *eventRepo) Create(_ context.Context, event *domain.AuditEvent) error {
	return r.h.view(func(st *state) error {
		for _, events := range st.events {
			for _, existing := range events {
				if existing.Radicado == event.Radicado {
					return repository.ErrDuplicate
				}
			}
		}
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		st.eventSeq++
		event.Seq = st.eventSeq
		st.events[event.RequestID] = append(st.events[event.RequestID], *event)
		return nil
	})
}

func (r *eventRepo) ListByRequest(_ context.Context, requestID string) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	err := r.h.view(func(st *state) error {
		out = slices.Clone(st.events[requestID])
		return nil
	})
	slices.SortFunc(out, func(a, b domain.AuditEvent) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	return out, err
}

func (r *eventRepo) MarkRead(_ context.Context, requestID, readerID string) (int64, error) {
	var marked int64
	err := r.h.view(func(st *state) error {
		events := st.events[requestID]
		for i := range events {
			if events[i].IsRead || events[i].AuthoredBy(readerID) {
				continue
			}
			events[i].IsRead = true
			marked++
		}
		return nil
	})
	return marked, err
}

func (r *eventRepo) CountUnread(_ context.Context, requestID, readerID string) (int64, error) {
	var n int64
	err := r.h.view(func(st *state) error {
		for _, event := range st.events[requestID] {
			if !event.IsRead && !event.AuthoredBy(readerID) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *eventRepo) LatestRadicado(_ context.Context) (string, error) {
	var code string
	err := r.h.view(func(st *state) error {
		var latest int64
		for _, events := range st.events {
			for _, event := range events {
				if event.Seq > latest {
					code, latest = event.Radicado, event.Seq
				}
			}
		}
		return nil
	})
	return code, err
}

type areaRepo struct{ h *handle }

func (r *areaRepo) GetByID(_ context.Context, id string) (*domain.Area, error) {
	var out *domain.Area
	err := r.h.view(func(st *state) error {
		area, ok := st.areas[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &area
		return nil
	})
	return out, err
}

func (r *areaRepo) LockByID(ctx context.Context, id string) (*domain.Area, error) {
	return r.GetByID(ctx, id)
}

func (r *areaRepo) UpdateCursor(_ context.Context, id string, cursor int64) error {
	return r.h.view(func(st *state) error {
		area, ok := st.areas[id]
		if !ok || cursor < area.LastAssignedIndex {
			return repository.ErrNotFound
		}
		area.LastAssignedIndex = cursor
		st.areas[id] = area
		return nil
	})
}

func (r *areaRepo) Create(_ context.Context, area *domain.Area) error {
	return r.h.view(func(st *state) error {
		if area.ID == "" {
			area.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		area.CreatedAt, area.UpdatedAt = now, now
		st.areas[area.ID] = *area
		return nil
	})
}

type procedureRepo struct{ h *handle }

func (r *procedureRepo) GetByID(_ context.Context, id string) (*domain.Procedure, error) {
	var out *domain.Procedure
	err := r.h.view(func(st *state) error {
		proc, ok := st.procedures[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &proc
		return nil
	})
	return out, err
}

type entityRepo struct{ h *handle }

func (r *entityRepo) GetByID(_ context.Context, id string) (*domain.Entity, error) {
	var out *domain.Entity
	err := r.h.view(func(st *state) error {
		entity, ok := st.entities[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &entity
		return nil
	})
	return out, err
}

type userRepo struct{ h *handle }

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	return r.h.view(func(st *state) error {
		for _, existing := range st.users {
			if existing.Email == user.Email {
				return repository.ErrDuplicate
			}
		}
		st.putUser(user, r.h.store.created)
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.h.view(func(st *state) error {
		user, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &user
		return nil
	})
	return out, err
}

func (r *userRepo) ListActiveOfficersByArea(_ context.Context, areaID string) ([]domain.User, error) {
	var roster []domain.User
	err := r.h.view(func(st *state) error {
		for _, user := range st.users {
			if user.Active && user.Role == domain.RoleOfficer && user.AreaID != nil && *user.AreaID == areaID {
				roster = append(roster, user)
			}
		}
		return nil
	})
	slices.SortFunc(roster, func(a, b domain.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return roster, err
}

type sequenceRepo struct{ h *handle }

func (r *sequenceRepo) Increment(_ context.Context, stream domain.SequenceStream) (int64, error) {
	var value int64
	err := r.h.view(func(st *state) error {
		st.sequences[stream]++
		value = st.sequences[stream]
		return nil
	})
	return value, err
}

func (r *sequenceRepo) Seed(_ context.Context, stream domain.SequenceStream, value int64) (bool, error) {
	var written bool
	err := r.h.view(func(st *state) error {
		if _, ok := st.sequences[stream]; ok {
			return nil
		}
		st.sequences[stream] = value
		written = true
		return nil
	})
	return written, err
}

func (r *sequenceRepo) AdvanceTo(_ context.Context, stream domain.SequenceStream, value int64) error {
	return r.h.view(func(st *state) error {
		if st.sequences[stream] < value {
			st.sequences[stream] = value
		}
		return nil
	})
}

func (r *sequenceRepo) Current(_ context.Context, stream domain.SequenceStream) (int64, bool, error) {
	var (
		value int64
		ok    bool
	)
	err := r.h.view(func(st *state) error {
		value, ok = st.sequences[stream]
		return nil
	})
	return value, ok, err
}

type externalRepo struct{ h *handle }

func (r *externalRepo) Create(_ context.Context, req *domain.ExternalRequest) error {
	return r.h.view(func(st *state) error {
		for _, existing := range st.external {
			if existing.Radicado == req.Radicado {
				return repository.ErrDuplicate
			}
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		st.external[req.ID] = *req
		return nil
	})
}

func (r *externalRepo) GetByIDForUpdate(_ context.Context, id string) (*domain.ExternalRequest, error) {
	var out *domain.ExternalRequest
	err := r.h.view(func(st *state) error {
		req, ok := st.external[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r *externalRepo) UpdateStatus(_ context.Context, req *domain.ExternalRequest) error {
	return r.h.view(func(st *state) error {
		current, ok := st.external[req.ID]
		if !ok {
			return repository.ErrNotFound
		}
		current.Status = req.Status
		current.UpdatedAt = req.UpdatedAt
		st.external[req.ID] = current
		return nil
	})
}

func (r *externalRepo) List(_ context.Context, filter repository.ExternalRequestFilter) ([]domain.ExternalRequest, error) {
	var out []domain.ExternalRequest
	err := r.h.view(func(st *state) error {
		for _, req := range st.external {
			if filter.EntityID != nil && req.EntityID != *filter.EntityID {
				continue
			}
			if filter.UserID != nil && req.UserID != *filter.UserID {
				continue
			}
			out = append(out, req)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.ExternalRequest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	limit, offset := page(filter.Limit, filter.Offset)
	if offset >= len(out) {
		return nil, err
	}
	return out[offset:min(offset+limit, len(out))], err
}

func (r *externalRepo) LatestRadicado(_ context.Context) (string, error) {
	var code string
	err := r.h.view(func(st *state) error {
		var latest time.Time
		for _, req := range st.external {
			if code == "" || req.CreatedAt.After(latest) {
				code, latest = req.Radicado, req.CreatedAt
			}
		}
		return nil
	})
	return code, err
}
