package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	lastCall WindowParams
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	s.lastCall = arg
	rows := s.rows
	if arg.LimitRows > 0 && int(arg.LimitRows) < len(rows) {
		rows = rows[:arg.LimitRows]
	}
	return rows, nil
}

func mockRow(id int64, ts, user, action, details string) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{ID: id, At: at, User: user, Action: action, Details: details}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow(3, "2024-03-10T10:00:00Z", "mary", "Sale", "Sale #3 total 1800.00 by mary"),
		mockRow(2, "2024-03-09T09:00:00Z", "kevin", "Layaway", "Created layaway #1"),
		mockRow(1, "2024-03-08T08:00:00Z", "admin", "Settings", "Set business password"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page, got %+v", result.Paging)
	}
	if repo.lastCall.LimitRows != 3 {
		t.Fatalf("expected limitRows 3, got %d", repo.lastCall.LimitRows)
	}
	if repo.lastCall.OffsetRows != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastCall.OffsetRows)
	}
	if !repo.lastCall.FromAt.Valid || !repo.lastCall.ToAt.Valid {
		t.Fatalf("expected time bounds to be set")
	}
}

func TestServiceTimelineFilters(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{User: "  mary ", Action: "Sale", Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastCall.User != (pgtype.Text{String: "mary", Valid: true}) {
		t.Fatalf("unexpected user filter: %+v", repo.lastCall.User)
	}
	if repo.lastCall.FromAt.Valid {
		t.Fatalf("expected open lower bound")
	}
	if result.Paging.PageSize != maxPageSize || repo.lastCall.OffsetRows != int32(2*maxPageSize) {
		t.Fatalf("unexpected paging: %+v offset %d", result.Paging, repo.lastCall.OffsetRows)
	}
	if result.Rows == nil || result.Paging.PrevPage != 2 {
		t.Fatalf("expected empty rows and prev page, got %+v", result)
	}
}

func TestServiceExportCSV(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow(2, "2024-03-10T10:00:00Z", "mary", "Sale", `Sale #9, "walk-in"`),
		mockRow(1, "2024-03-09T09:00:00Z", "kevin", "Stock", "Received 5"),
	}}
	svc := NewService(repo)
	out, err := svc.ExportCSV(context.Background(), TimelineFilters{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", out)
	}
	if lines[0] != "id,at,user,action,details" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], `"Sale #9, ""walk-in"""`) {
		t.Fatalf("expected quoted details, got %q", lines[1])
	}
	if repo.lastCall.LimitRows != 0 {
		t.Fatalf("export must not page, got limit %d", repo.lastCall.LimitRows)
	}
}
