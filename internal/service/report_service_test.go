package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/domain"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

func (w *world) reports(loc *time.Location) *ReportService {
	return NewReportService(ReportDependencies{Store: w.store, Location: loc, Clock: w.clock})
}

func TestSearchUnifiedMergesBothSources(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	proc := w.procedure(area.ID, 10)
	citizen := w.citizen()
	staff := actorOf(officers[0])

	r1 := w.file(t, citizen, proc)
	w.clock.Advance(time.Minute)
	e1, err := w.external.CreateExternalRequest(ctx, staff, externalInput(w.entity.ID))
	require.NoError(t, err)
	w.clock.Advance(time.Minute)
	r2 := w.file(t, citizen, proc)
	w.clock.Advance(time.Minute)
	e2, err := w.external.CreateExternalRequest(ctx, staff, externalInput(w.entity.ID))
	require.NoError(t, err)
	w.clock.Advance(time.Minute)
	r3 := w.file(t, citizen, proc)

	reports := w.reports(nil)
	page, err := reports.SearchUnified(ctx, staff, ReportQuery{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	assert.Equal(t, 3, page.PageCount)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, r3.ID, page.Entries[0].ID)
	assert.Equal(t, e2.ID, page.Entries[1].ID)
	assert.Equal(t, ReportKindExternal, page.Entries[1].Kind)

	page, err = reports.SearchUnified(ctx, staff, ReportQuery{Limit: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, r2.ID, page.Entries[0].ID)
	assert.Equal(t, e1.ID, page.Entries[1].ID)

	page, err = reports.SearchUnified(ctx, staff, ReportQuery{Limit: 2, Page: 3})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, r1.ID, page.Entries[0].ID)

	page, err = reports.SearchUnified(ctx, staff, ReportQuery{Limit: 2, Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.NotNil(t, page.Entries)

	page, err = reports.SearchUnified(ctx, staff, ReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, defaultReportLimit, page.Limit)
	assert.Len(t, page.Entries, 5)
}

func TestSearchUnifiedFilters(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	proc := w.procedure(area.ID, 10)
	citizen := w.citizen()
	staff := actorOf(officers[0])

	done := w.file(t, citizen, proc)
	w.file(t, citizen, proc)
	_, err := w.external.CreateExternalRequest(ctx, staff, externalInput(w.entity.ID))
	require.NoError(t, err)
	_, err = w.requests.CompleteRequest(ctx, staff, done.ID)
	require.NoError(t, err)

	reports := w.reports(nil)
	cases := []struct {
		name  string
		query ReportQuery
		total int64
	}{
		{"radicado is case insensitive", ReportQuery{Radicado: "ext-"}, 1},
		{"radicado substring", ReportQuery{Radicado: "00001"}, 2},
		{"subject is case insensitive", ReportQuery{Subject: "CONCEPTO"}, 1},
		{"status", ReportQuery{Status: string(domain.RequestStatusCompleted)}, 1},
		{"internal only", ReportQuery{Kind: ReportKindInternal}, 2},
		{"external only", ReportQuery{Kind: ReportKindExternal}, 1},
		{"like wildcards are literal", ReportQuery{Subject: "%"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := reports.SearchUnified(ctx, staff, tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.total, page.Total)
			assert.Len(t, page.Entries, int(tc.total))
		})
	}

	_, err = reports.SearchUnified(ctx, staff, ReportQuery{Status: "ARCHIVED"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))
	_, err = reports.SearchUnified(ctx, staff, ReportQuery{Kind: "both"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))
	_, err = reports.SearchUnified(ctx, actorOf(citizen), ReportQuery{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestSearchUnifiedScopedToStaffEntity(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	proc := w.procedure(area.ID, 10)
	w.file(t, w.citizen(), proc)

	other := w.store.SeedEntity(domain.Entity{Name: "Gobernación"})
	otherID := other.ID
	outsider := w.store.SeedUser(domain.User{FullName: "Otro", Email: "otro@example.com", Role: domain.RoleOfficer, EntityID: &otherID, Active: true})
	super := w.store.SeedUser(domain.User{FullName: "Root", Email: "root@example.com", Role: domain.RoleSuper, Active: true})

	reports := w.reports(nil)
	page, err := reports.SearchUnified(ctx, actorOf(outsider), ReportQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	page, err = reports.SearchUnified(ctx, actorOf(officers[0]), ReportQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	page, err = reports.SearchUnified(ctx, actorOf(super), ReportQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
}

func TestEntityKPIs(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	area, officers := w.area("Atención", 2)
	proc := w.procedure(area.ID, 10)
	citizen := w.citizen()
	admin := w.staff(domain.RoleAdmin, area.ID)

	first := w.file(t, citizen, proc)
	second := w.file(t, citizen, proc)
	w.file(t, citizen, proc)
	w.clock.Advance(36 * time.Hour)
	_, err := w.requests.CompleteRequest(ctx, actorOf(officers[0]), first.ID)
	require.NoError(t, err)
	w.clock.Advance(24 * time.Hour)
	_, err = w.requests.CompleteRequest(ctx, actorOf(officers[0]), second.ID)
	require.NoError(t, err)

	reports := w.reports(nil)
	kpis, err := reports.EntityKPIs(ctx, actorOf(admin), DateRange{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, kpis.TotalRequests)
	assert.EqualValues(t, 2, kpis.ResolvedRequests)
	assert.Equal(t, 2.0, kpis.AvgResponseDays)
	assert.EqualValues(t, 3, kpis.ActiveUsers, "officers and admin; citizens have no entity")

	later := epoch.Add(time.Hour)
	kpis, err = reports.EntityKPIs(ctx, actorOf(admin), DateRange{From: &later})
	require.NoError(t, err)
	assert.Zero(t, kpis.TotalRequests)
	assert.Zero(t, kpis.AvgResponseDays)
}

func TestEntityKPIsRoundsResponseTime(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	proc := w.procedure(area.ID, 10)
	admin := w.staff(domain.RoleAdmin, area.ID)

	req := w.file(t, w.citizen(), proc)
	w.clock.Advance(8 * time.Hour)
	_, err := w.requests.CompleteRequest(ctx, actorOf(officers[0]), req.ID)
	require.NoError(t, err)

	kpis, err := w.reports(nil).EntityKPIs(ctx, actorOf(admin), DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 0.33, kpis.AvgResponseDays)
}

func TestAnalyticsRequireAdminWithEntity(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	_, officers := w.area("Atención", 1)
	unbound := w.store.SeedUser(domain.User{FullName: "Root", Email: "root@example.com", Role: domain.RoleSuper, Active: true})
	reports := w.reports(nil)

	_, err := reports.EntityKPIs(ctx, actorOf(officers[0]), DateRange{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, err = reports.RequestsByStatus(ctx, actorOf(officers[0]))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, err = reports.RequestsTrend(ctx, actorOf(unbound), DateRange{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))
}

func TestRequestsByStatusAndArea(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	busy, officers := w.area("Atención", 1)
	w.area("Archivo", 0)
	proc := w.procedure(busy.ID, 1)
	citizen := w.citizen()
	admin := w.staff(domain.RoleAdmin, busy.ID)

	first := w.file(t, citizen, proc)
	w.file(t, citizen, proc)
	w.file(t, citizen, proc)
	_, err := w.requests.CompleteRequest(ctx, actorOf(officers[0]), first.ID)
	require.NoError(t, err)
	w.clock.Advance(48 * time.Hour)
	_, err = w.store.Repos().Requests.MarkOverdue(ctx, w.clock.Now())
	require.NoError(t, err)

	reports := w.reports(nil)
	statuses, err := reports.RequestsByStatus(ctx, actorOf(admin))
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{
		{Status: domain.RequestStatusPending, Label: "Pendientes", Value: 0},
		{Status: domain.RequestStatusInReview, Label: "En Revisión", Value: 0},
		{Status: domain.RequestStatusCompleted, Label: "Completadas", Value: 1},
		{Status: domain.RequestStatusOverdue, Label: "Vencidas", Value: 2},
	}, statuses)

	areas, err := reports.RequestsByArea(ctx, actorOf(admin))
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, "Archivo", areas[0].AreaName)
	assert.Zero(t, areas[0].Count)
	assert.Equal(t, "Atención", areas[1].AreaName)
	assert.EqualValues(t, 3, areas[1].Count)
}

func TestLatestActivity(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	area, officers := w.area("Atención", 1)
	proc := w.procedure(area.ID, 10)
	citizen := w.citizen()
	admin := w.staff(domain.RoleAdmin, area.ID)

	var filed []*domain.Request
	for i := 0; i < 7; i++ {
		filed = append(filed, w.file(t, citizen, proc))
		w.clock.Advance(time.Minute)
	}
	_, err := w.requests.ReplyToRequest(ctx, actorOf(officers[0]), filed[0].ID, ReplyInput{Message: "en trámite"})
	require.NoError(t, err)

	latest, err := w.reports(nil).LatestActivity(ctx, actorOf(admin))
	require.NoError(t, err)
	require.Len(t, latest, 5)
	assert.Equal(t, filed[0].ID, latest[0].ID, "touched by the reply")
	assert.Equal(t, filed[6].ID, latest[1].ID)
	assert.Equal(t, filed[3].ID, latest[4].ID)
}

func TestRequestsTrend(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	area, _ := w.area("Atención", 1)
	proc := w.procedure(area.ID, 30)
	citizen := w.citizen()
	admin := w.staff(domain.RoleAdmin, area.ID)
	bogota, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	// 2024-01-27 02:00 UTC is still the 26th in Bogotá.
	w.clock.Set(time.Date(2024, time.January, 27, 2, 0, 0, 0, time.UTC))
	w.file(t, citizen, proc)
	w.clock.Set(epoch)
	w.file(t, citizen, proc)
	w.file(t, citizen, proc)

	reports := w.reports(bogota)
	days, err := reports.RequestsTrend(ctx, actorOf(admin), DateRange{})
	require.NoError(t, err)
	require.Len(t, days, 30)
	assert.Equal(t, "2024-01-01", days[0].Date)
	assert.Equal(t, DayCount{Date: "2024-01-30", Count: 2}, days[29])
	assert.Equal(t, DayCount{Date: "2024-01-26", Count: 1}, days[25])
	var total int64
	for _, d := range days {
		total += d.Count
	}
	assert.EqualValues(t, 3, total)

	from := time.Date(2024, time.January, 29, 12, 0, 0, 0, time.UTC)
	days, err = reports.RequestsTrend(ctx, actorOf(admin), DateRange{From: &from})
	require.NoError(t, err)
	assert.Equal(t, []DayCount{{Date: "2024-01-29", Count: 0}, {Date: "2024-01-30", Count: 2}}, days)

	to := from.AddDate(0, 0, -1)
	_, err = reports.RequestsTrend(ctx, actorOf(admin), DateRange{From: &from, To: &to})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))

	longAgo := from.AddDate(-2, 0, 0)
	_, err = reports.RequestsTrend(ctx, actorOf(admin), DateRange{From: &longAgo})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidPayload))
}
