package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/pqrs-service/internal/clock"
	"github.com/spec-kit/pqrs-service/internal/config"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

const overdueMessage = "Solicitud vencida por superar el plazo de respuesta."

// AuditAppender stores system audit events inside a transaction.
type AuditAppender interface {
	Append(ctx context.Context, repos repository.Repositories, event *domain.AuditEvent) error
}

// DeadlineNotifier warns assignees about requests expiring soon.
type DeadlineNotifier interface {
	DeadlineAlert(ctx context.Context, req *domain.Request) error
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Promoted     int
	AlertsSent   int
	AlertsFailed int
	Skipped      bool
}

// OverdueSweeper promotes expired requests and sends next-day deadline alerts.
type OverdueSweeper struct {
	store    repository.Store
	audit    AuditAppender
	notifier DeadlineNotifier
	fanout   *events.Fanout
	locker   Locker
	clock    clock.Clock
	cfg      config.SweeperConfig
	loc      *time.Location
	logger   *zap.Logger
}

// SweeperDependencies bundles collaborators.
type SweeperDependencies struct {
	Store    repository.Store
	Audit    AuditAppender
	Notifier DeadlineNotifier
	Fanout   *events.Fanout
	Locker   Locker
	Clock    clock.Clock
	Config   config.SweeperConfig
	Logger   *zap.Logger
}

// NewOverdueSweeper validates the schedule timezone and builds the sweeper.
func NewOverdueSweeper(deps SweeperDependencies) (*OverdueSweeper, error) {
	loc, err := deps.Config.Location()
	if err != nil {
		return nil, fmt.Errorf("sweeper timezone: %w", err)
	}
	if deps.Locker == nil {
		deps.Locker = LocalLocker{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config.AlertConcurrency <= 0 {
		deps.Config.AlertConcurrency = 1
	}
	return &OverdueSweeper{
		store:    deps.Store,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		fanout:   deps.Fanout,
		locker:   deps.Locker,
		clock:    deps.Clock,
		cfg:      deps.Config,
		loc:      loc,
		logger:   deps.Logger.Named("sweeper"),
	}, nil
}

// Start runs the sweep on the configured cron schedule until ctx is done.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOverdueSweep(ctx); err != nil {
			s.logger.Error("overdue sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.logger.Info("sweeper scheduled", zap.String("schedule", s.cfg.Schedule), zap.String("timezone", s.loc.String()))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOverdueSweep performs one sweep. Promotions are committed before any
// per-request follow-up, so later failures never undo them.
func (s *OverdueSweeper) RunOverdueSweep(ctx context.Context) (*SweepReport, error) {
	now := s.clock.Now()
	report := &SweepReport{}

	key := "pqrs:sweep:" + now.In(s.loc).Format(time.DateOnly)
	ok, err := s.locker.Acquire(ctx, key, s.cfg.LockTTL())
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		s.logger.Info("sweep already claimed by another replica", zap.String("key", key))
		report.Skipped = true
		return report, nil
	}

	promoted, err := s.store.Repos().Requests.MarkOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("promote overdue requests: %w", err)
	}
	report.Promoted = len(promoted)
	observability.SweepPromotedTotal.Add(float64(len(promoted)))
	for i := range promoted {
		s.recordOverdue(ctx, &promoted[i], now)
	}

	sent, failed, err := s.sendAlerts(ctx, now)
	if err != nil {
		return report, err
	}
	report.AlertsSent = sent
	report.AlertsFailed = failed

	s.logger.Info("overdue sweep finished",
		zap.Int("promoted", report.Promoted),
		zap.Int("alerts_sent", report.AlertsSent),
		zap.Int("alerts_failed", report.AlertsFailed),
	)
	return report, nil
}

func (s *OverdueSweeper) recordOverdue(ctx context.Context, req *domain.Request, now time.Time) {
	event := &domain.AuditEvent{
		RequestID: req.ID,
		Kind:      domain.AuditKindOverdue,
		Message:   overdueMessage,
		CreatedAt: now,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return s.audit.Append(ctx, repos, event)
	})
	if err != nil {
		s.logger.Warn("overdue audit event failed", zap.String("radicado", req.Radicado), zap.Error(err))
	}

	published := events.Event{
		Type:      events.EventRequestOverdue,
		RequestID: req.ID,
		Radicado:  req.Radicado,
		Payload: events.RequestUpdatedPayload{
			Kind:         domain.AuditKindOverdue,
			UpdateCode:   event.Radicado,
			Status:       req.Status,
			Message:      overdueMessage,
			AssignedToID: req.AssignedToID,
		},
	}
	s.fanout.ToRequest(ctx, req.ID, published)
	s.fanout.ToEntity(ctx, req.EntityID, published)
}

// sendAlerts mails the assignee of every open request due during the next
// calendar day in the sweep timezone. Unassigned requests have nobody to alert.
func (s *OverdueSweeper) sendAlerts(ctx context.Context, now time.Time) (int, int, error) {
	from, to := nextDay(now, s.loc)
	due, err := s.store.Repos().Requests.ListOpenDueBetween(ctx, from, to)
	if err != nil {
		return 0, 0, fmt.Errorf("list requests due tomorrow: %w", err)
	}

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.AlertConcurrency)
	for i := range due {
		req := &due[i]
		if req.AssignedToID == nil {
			continue
		}
		g.Go(func() error {
			if err := s.notifier.DeadlineAlert(gctx, req); err != nil {
				failed.Add(1)
				observability.SweepAlertsTotal.WithLabelValues("failed").Inc()
				return nil
			}
			sent.Add(1)
			observability.SweepAlertsTotal.WithLabelValues("sent").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load()), int(failed.Load()), nil
}

// nextDay returns the UTC bounds of the calendar day after now in loc.
func nextDay(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day()+2, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC()
}
