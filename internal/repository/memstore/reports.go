package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

func (r *requestRepo) Search(_ context.Context, search repository.RequestSearch) ([]domain.Request, int64, error) {
	var matched []domain.Request
	err := r.h.view(func(st *state) error {
		for _, req := range st.requests {
			if matchesSearch(search, req.EntityID, req.Radicado, req.Subject, req.Status) {
				matched = append(matched, req)
			}
		}
		return nil
	})
	slices.SortFunc(matched, func(a, b domain.Request) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return window(matched, search.Limit, search.Offset), int64(len(matched)), err
}

func (r *requestRepo) Stats(_ context.Context, entityID string, from, to *time.Time) (repository.RequestStats, error) {
	var (
		stats repository.RequestStats
		days  float64
	)
	err := r.h.view(func(st *state) error {
		for _, req := range st.requests {
			if req.EntityID != entityID {
				continue
			}
			if from != nil && req.CreatedAt.Before(*from) {
				continue
			}
			if to != nil && req.CreatedAt.After(*to) {
				continue
			}
			stats.Total++
			if req.Status == domain.RequestStatusCompleted {
				stats.Resolved++
				days += req.UpdatedAt.Sub(req.CreatedAt).Hours() / 24
			}
		}
		return nil
	})
	if stats.Resolved > 0 {
		stats.AvgResponseDays = days / float64(stats.Resolved)
	}
	return stats, err
}

func (r *requestRepo) CountByArea(_ context.Context, entityID string) ([]repository.AreaCount, error) {
	var out []repository.AreaCount
	err := r.h.view(func(st *state) error {
		for _, area := range st.areas {
			if area.EntityID != entityID {
				continue
			}
			ac := repository.AreaCount{AreaID: area.ID, AreaName: area.Name}
			for _, req := range st.requests {
				if req.CurrentAreaID != nil && *req.CurrentAreaID == area.ID {
					ac.Count++
				}
			}
			out = append(out, ac)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b repository.AreaCount) int {
		if c := cmp.Compare(a.AreaName, b.AreaName); c != 0 {
			return c
		}
		return cmp.Compare(a.AreaID, b.AreaID)
	})
	return out, err
}

func (r *requestRepo) DailyCounts(_ context.Context, entityID string, from, to time.Time, loc *time.Location) (map[string]int64, error) {
	counts := make(map[string]int64)
	err := r.h.view(func(st *state) error {
		for _, req := range st.requests {
			if req.EntityID != entityID || req.CreatedAt.Before(from) || !req.CreatedAt.Before(to) {
				continue
			}
			counts[req.CreatedAt.In(loc).Format(time.DateOnly)]++
		}
		return nil
	})
	return counts, err
}

func (r *requestRepo) LatestUpdated(_ context.Context, entityID string, limit int) ([]domain.Request, error) {
	var out []domain.Request
	err := r.h.view(func(st *state) error {
		for _, req := range st.requests {
			if req.EntityID == entityID {
				out = append(out, req)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Request) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	limit, _ = page(limit, 0)
	return out[:min(limit, len(out))], err
}

func (r *externalRepo) GetByID(ctx context.Context, id string) (*domain.ExternalRequest, error) {
	return r.GetByIDForUpdate(ctx, id)
}

func (r *externalRepo) Search(_ context.Context, search repository.RequestSearch) ([]domain.ExternalRequest, int64, error) {
	var matched []domain.ExternalRequest
	err := r.h.view(func(st *state) error {
		for _, req := range st.external {
			if matchesSearch(search, req.EntityID, req.Radicado, req.Subject, req.Status) {
				matched = append(matched, req)
			}
		}
		return nil
	})
	slices.SortFunc(matched, func(a, b domain.ExternalRequest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return window(matched, search.Limit, search.Offset), int64(len(matched)), err
}

func (r *userRepo) CountActiveByEntity(_ context.Context, entityID string) (int64, error) {
	var n int64
	err := r.h.view(func(st *state) error {
		for _, user := range st.users {
			if user.Active && user.EntityID != nil && *user.EntityID == entityID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func matchesSearch(search repository.RequestSearch, entityID, radicado, subject string, status domain.RequestStatus) bool {
	if search.EntityID != nil && entityID != *search.EntityID {
		return false
	}
	if search.Radicado != "" && !containsFold(radicado, search.Radicado) {
		return false
	}
	if search.Subject != "" && !containsFold(subject, search.Subject) {
		return false
	}
	return search.Status == nil || status == *search.Status
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// window pages report results; unlike page the limit is not capped.
func window[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	return items[offset:min(offset+limit, len(items))]
}
