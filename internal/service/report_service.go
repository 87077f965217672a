package service

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/clock"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// Report entry kinds.
const (
	ReportKindInternal = "internal"
	ReportKindExternal = "external"
)

const (
	defaultReportLimit = 10
	maxReportLimit     = 100
	latestActivitySize = 5
	trendDays          = 30
	maxTrendDays       = 366
)

// StatusLabels are the dashboard captions for each request status.
var StatusLabels = map[domain.RequestStatus]string{
	domain.RequestStatusPending:   "Pendientes",
	domain.RequestStatusInReview:  "En Revisión",
	domain.RequestStatusCompleted: "Completadas",
	domain.RequestStatusOverdue:   "Vencidas",
}

// ReportQuery filters the unified report listing. Page is 1-based.
type ReportQuery struct {
	Radicado string
	Subject  string
	Status   string
	Kind     string
	Page     int
	Limit    int
}

// ReportEntry is a citizen request or an external request in the unified listing.
type ReportEntry struct {
	Kind      string
	ID        string
	Radicado  string
	Subject   string
	Status    domain.RequestStatus
	EntityID  string
	Deadline  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReportPage is one page of the unified listing.
type ReportPage struct {
	Entries   []ReportEntry
	Total     int64
	Page      int
	PageCount int
	Limit     int
}

// DateRange bounds KPI aggregation on creation time. Nil ends are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// EntityKPIs summarises an entity's workload.
type EntityKPIs struct {
	TotalRequests    int64
	ResolvedRequests int64
	AvgResponseDays  float64
	ActiveUsers      int64
}

// StatusCount is one slice of the status breakdown.
type StatusCount struct {
	Status domain.RequestStatus
	Label  string
	Value  int64
}

// DayCount is the number of requests filed on one calendar day.
type DayCount struct {
	Date  string
	Count int64
}

// ReportService answers staff reporting and dashboard queries.
type ReportService struct {
	store    repository.Store
	location *time.Location
	clock    clock.Clock
	logger   *zap.Logger
}

// ReportDependencies bundles collaborators.
type ReportDependencies struct {
	Store    repository.Store
	Location *time.Location
	Clock    clock.Clock
	Logger   *zap.Logger
}

// NewReportService constructs the service.
func NewReportService(deps ReportDependencies) *ReportService {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ReportService{
		store:    deps.Store,
		location: deps.Location,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// SearchUnified pages citizen and external requests together, newest first.
// Staff bound to an entity only see that entity's requests.
func (s *ReportService) SearchUnified(ctx context.Context, actor domain.Actor, query ReportQuery) (*ReportPage, error) {
	if !domain.HasStaffRole(actor) {
		return nil, apperrors.NewUnauthorized("only staff may search requests")
	}
	search, err := s.searchFor(ctx, actor, query)
	if err != nil {
		return nil, err
	}

	pageNo, limit := query.Page, query.Limit
	if pageNo < 1 {
		pageNo = 1
	}
	if limit <= 0 {
		limit = defaultReportLimit
	}
	limit = min(limit, maxReportLimit)
	offset := (pageNo - 1) * limit

	// Each source contributes at most offset+limit rows to the merged prefix.
	search.Limit, search.Offset = offset+limit, 0
	repos := s.store.Repos()
	var (
		entries []ReportEntry
		total   int64
	)
	if query.Kind != ReportKindExternal {
		reqs, n, err := repos.Requests.Search(ctx, search)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		total += n
		for _, req := range reqs {
			entries = append(entries, ReportEntry{
				Kind:      ReportKindInternal,
				ID:        req.ID,
				Radicado:  req.Radicado,
				Subject:   req.Subject,
				Status:    req.Status,
				EntityID:  req.EntityID,
				Deadline:  req.Deadline,
				CreatedAt: req.CreatedAt,
				UpdatedAt: req.UpdatedAt,
			})
		}
	}
	if query.Kind != ReportKindInternal {
		reqs, n, err := repos.External.Search(ctx, search)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		total += n
		for _, req := range reqs {
			entries = append(entries, ReportEntry{
				Kind:      ReportKindExternal,
				ID:        req.ID,
				Radicado:  req.Radicado,
				Subject:   req.Subject,
				Status:    req.Status,
				EntityID:  req.EntityID,
				Deadline:  req.Deadline,
				CreatedAt: req.CreatedAt,
				UpdatedAt: req.UpdatedAt,
			})
		}
	}

	slices.SortStableFunc(entries, func(a, b ReportEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	pageEntries := []ReportEntry{}
	if offset < len(entries) {
		pageEntries = entries[offset:min(offset+limit, len(entries))]
	}

	return &ReportPage{
		Entries:   pageEntries,
		Total:     total,
		Page:      pageNo,
		PageCount: int(math.Ceil(float64(total) / float64(limit))),
		Limit:     limit,
	}, nil
}

func (s *ReportService) searchFor(ctx context.Context, actor domain.Actor, query ReportQuery) (repository.RequestSearch, error) {
	search := repository.RequestSearch{
		Radicado: strings.TrimSpace(query.Radicado),
		Subject:  strings.TrimSpace(query.Subject),
	}
	if query.Status != "" {
		status := domain.RequestStatus(query.Status)
		if !status.Valid() {
			return search, apperrors.NewInvalidPayload("unknown status filter", map[string]any{"status": query.Status})
		}
		search.Status = &status
	}
	switch query.Kind {
	case "", ReportKindInternal, ReportKindExternal:
	default:
		return search, apperrors.NewInvalidPayload("type must be internal or external", map[string]any{"type": query.Kind})
	}

	user, err := s.store.Repos().Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return search, repoError(err, "user")
	}
	search.EntityID = user.EntityID
	return search, nil
}

// EntityKPIs reports totals, resolution and response time for the admin's entity.
func (s *ReportService) EntityKPIs(ctx context.Context, actor domain.Actor, window DateRange) (*EntityKPIs, error) {
	entityID, err := s.adminEntity(ctx, actor)
	if err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	stats, err := repos.Requests.Stats(ctx, entityID, window.From, window.To)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	active, err := repos.Users.CountActiveByEntity(ctx, entityID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &EntityKPIs{
		TotalRequests:    stats.Total,
		ResolvedRequests: stats.Resolved,
		AvgResponseDays:  math.Round(stats.AvgResponseDays*100) / 100,
		ActiveUsers:      active,
	}, nil
}

// RequestsByArea counts requests per area of the admin's entity, areas without requests included.
func (s *ReportService) RequestsByArea(ctx context.Context, actor domain.Actor) ([]repository.AreaCount, error) {
	entityID, err := s.adminEntity(ctx, actor)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.Repos().Requests.CountByArea(ctx, entityID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if counts == nil {
		counts = []repository.AreaCount{}
	}
	return counts, nil
}

// RequestsByStatus breaks the entity's requests down by every status.
func (s *ReportService) RequestsByStatus(ctx context.Context, actor domain.Actor) ([]StatusCount, error) {
	entityID, err := s.adminEntity(ctx, actor)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.Repos().Requests.CountByStatus(ctx, repository.RequestFilter{EntityID: &entityID})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	out := make([]StatusCount, 0, len(domain.AllRequestStatuses))
	for _, status := range domain.AllRequestStatuses {
		out = append(out, StatusCount{Status: status, Label: StatusLabels[status], Value: counts[status]})
	}
	return out, nil
}

// LatestActivity returns the entity's most recently updated requests.
func (s *ReportService) LatestActivity(ctx context.Context, actor domain.Actor) ([]domain.Request, error) {
	entityID, err := s.adminEntity(ctx, actor)
	if err != nil {
		return nil, err
	}
	reqs, err := s.store.Repos().Requests.LatestUpdated(ctx, entityID, latestActivitySize)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if reqs == nil {
		reqs = []domain.Request{}
	}
	return reqs, nil
}

// RequestsTrend counts filings per local day across [from, to], zero days
// included. Missing bounds default to the last thirty days ending today.
func (s *ReportService) RequestsTrend(ctx context.Context, actor domain.Actor, window DateRange) ([]DayCount, error) {
	entityID, err := s.adminEntity(ctx, actor)
	if err != nil {
		return nil, err
	}

	end := startOfDay(s.clock.Now(), s.location)
	if window.To != nil {
		end = startOfDay(*window.To, s.location)
	}
	start := end.AddDate(0, 0, -(trendDays - 1))
	if window.From != nil {
		start = startOfDay(*window.From, s.location)
	}
	if start.After(end) {
		return nil, apperrors.NewInvalidPayload("from must not be after to", nil)
	}
	if end.Sub(start) >= maxTrendDays*24*time.Hour {
		return nil, apperrors.NewInvalidPayload("trend window is limited to one year", nil)
	}

	counts, err := s.store.Repos().Requests.DailyCounts(ctx, entityID, start, end.AddDate(0, 0, 1), s.location)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	var out []DayCount
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		out = append(out, DayCount{Date: key, Count: counts[key]})
	}
	return out, nil
}

// adminEntity resolves the entity an ADMIN or SUPER actor reports on.
func (s *ReportService) adminEntity(ctx context.Context, actor domain.Actor) (string, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSuper {
		return "", apperrors.NewUnauthorized("analytics are restricted to administrators")
	}
	user, err := s.store.Repos().Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return "", repoError(err, "user")
	}
	if user.EntityID == nil || *user.EntityID == "" {
		return "", apperrors.NewInvalidPayload("user is not bound to an entity", nil)
	}
	return *user.EntityID, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
