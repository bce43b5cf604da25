package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"macropulse/internal/digest"
	"macropulse/internal/logging"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, logging.NewLogger()), mock
}

func TestNormalizeAuthor(t *testing.T) {
	cases := map[string]string{
		"@alice":  "alice",
		"alice":   "alice",
		" @bob ":  "bob",
		"@@carol": "@carol",
	}
	for in, want := range cases {
		if got := NormalizeAuthor(in); got != want {
			t.Errorf("NormalizeAuthor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInsertItemStoresNewItem(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT 1 FROM items").
		WithArgs("alice", "rates up").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectExec("INSERT INTO items").
		WithArgs("1", "alice", "rates up", sqlmock.AnyArg(), "https://twitter.com/alice/status/1",
			5, 0, 0, 0, false, 1, "macro").
		WillReturnResult(sqlmock.NewResult(0, 1))

	item := digest.Item{
		ID: "1", Author: "@alice", Content: "rates up",
		Timestamp: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
		URL:       "https://twitter.com/alice/status/1",
		Engagement: digest.Engagement{Likes: 5},
		ThreadLength: 1, Topic: "macro",
	}
	if err := s.InsertItem(context.Background(), item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertItemRejectsDuplicateAuthorContent(t *testing.T) {
	s, mock := newMockStore(t)

	// the sigil is stripped before matching, so "@alice" hits "alice"
	mock.ExpectQuery("SELECT 1 FROM items").
		WithArgs("alice", "rates up").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := s.InsertItem(context.Background(), digest.Item{ID: "2", Author: "@alice", Content: "rates up"})
	if !errors.Is(err, digest.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestItemsSinceFiltersUnsummarized(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 8, 26, 18, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "author", "content", "created_at", "url",
		"likes", "reposts", "replies", "quotes", "is_thread", "thread_length", "summarized", "topic"}).
		AddRow("1", "alice", "rates up", since.Add(time.Hour), "u", 5, 1, 0, 0, false, 1, false, "macro")
	mock.ExpectQuery(`FROM items WHERE created_at >= \$1 AND summarized = FALSE`).
		WithArgs(since).
		WillReturnRows(rows)

	items, err := s.ItemsSince(context.Background(), since, true)
	if err != nil {
		t.Fatalf("items since: %v", err)
	}
	if len(items) != 1 || items[0].ID != "1" || items[0].Engagement.Likes != 5 {
		t.Fatalf("unexpected items: %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkSummarizedUsesArrayUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE items SET summarized = TRUE").
		WithArgs(pq.Array([]string{"1", "2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := s.MarkSummarized(context.Background(), []string{"1", "2"}); err != nil {
		t.Fatalf("mark summarized: %v", err)
	}
	// empty id list is a no-op, no query expected
	if err := s.MarkSummarized(context.Background(), nil); err != nil {
		t.Fatalf("empty mark summarized: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveReportAssignsID(t *testing.T) {
	s, mock := newMockStore(t)
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO reports").
		WithArgs(sqlmock.AnyArg(), "summary text", pq.Array([]string{"1", "2"}), date).
		WillReturnResult(sqlmock.NewResult(0, 1))

	report, err := s.SaveReport(context.Background(), digest.Report{
		Summary: "summary text", ItemIDs: []string{"1", "2"}, Date: date,
	})
	if err != nil {
		t.Fatalf("save report: %v", err)
	}
	if report.ID == "" {
		t.Fatalf("report should get an id")
	}
	if report.EmailSent {
		t.Fatalf("new report must start unsent")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReportByDateReturnsNilWhenAbsent(t *testing.T) {
	s, mock := newMockStore(t)
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM reports WHERE report_date").
		WithArgs(date).
		WillReturnError(sql.ErrNoRows)

	report, err := s.ReportByDate(context.Background(), date)
	if err != nil {
		t.Fatalf("report by date: %v", err)
	}
	if report != nil {
		t.Fatalf("expected nil report, got %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkEmailSentRequiresExistingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE reports SET email_sent = TRUE").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.MarkEmailSent(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown report id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertSnapshotIsIdempotentPerWindow(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	existing := sqlmock.NewRows([]string{"id", "start_date", "end_date", "metrics", "covered"}).
		AddRow("snap-1", start, end, []byte(`{"fees":{"current":1200000}}`), false)
	mock.ExpectQuery("FROM metrics_snapshots WHERE start_date").
		WithArgs(start, end).
		WillReturnRows(existing)

	snap, err := s.InsertSnapshot(context.Background(), digest.MetricsSnapshot{
		StartDate: start, EndDate: end,
		Metrics: map[string]digest.MetricValue{"fees": {Current: 9}},
	})
	if err != nil {
		t.Fatalf("insert snapshot: %v", err)
	}
	if snap.ID != "snap-1" {
		t.Fatalf("existing window should be returned unchanged, got %+v", snap)
	}
	if snap.Metrics["fees"].Current != 1200000 {
		t.Fatalf("stored metrics should win, got %+v", snap.Metrics)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLatestUncoveredSnapshotDecodesMetrics(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "start_date", "end_date", "metrics", "covered"}).
		AddRow("snap-2", start, end, []byte(`{"fees":{"current":10,"previous":8,"formatted_delta":"+25.0%"}}`), false)
	mock.ExpectQuery("FROM metrics_snapshots WHERE covered = FALSE").
		WillReturnRows(rows)

	snap, err := s.LatestUncoveredSnapshot(context.Background())
	if err != nil {
		t.Fatalf("latest uncovered: %v", err)
	}
	if snap == nil || snap.ID != "snap-2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Metrics["fees"].FormattedDelta != "+25.0%" {
		t.Fatalf("metrics not decoded: %+v", snap.Metrics)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
