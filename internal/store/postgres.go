package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"macropulse/internal/digest"
	"macropulse/internal/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds connection pool settings.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Store is the Postgres-backed system of record for items, reports and
// metrics snapshots. It implements digest.ItemStore.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Connect opens the database, applies pending migrations and returns a Store.
func Connect(ctx context.Context, cfg Config, logger logging.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("store: database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}

	logger.WithFields(logging.Fields{"max_open_conns": cfg.MaxOpenConns}).Info("database connected")
	return &Store{db: db, logger: logger}, nil
}

// New wraps an existing connection without running migrations.
func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// NormalizeAuthor strips the leading sigil so "@alice" and "alice" compare
// as the same author.
func NormalizeAuthor(author string) string {
	return strings.TrimPrefix(strings.TrimSpace(author), "@")
}

// Exists reports whether an item with the same (author, content) pair is
// already stored.
func (s *Store) Exists(ctx context.Context, author, content string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM items WHERE author = $1 AND content = $2 LIMIT 1`,
		NormalizeAuthor(author), content).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check item: %w", err)
	}
	return true, nil
}

// InsertItem stores an item unless the same (author, content) pair already
// exists, in which case it returns digest.ErrAlreadyExists. The check and the
// write form one logical operation from the caller's point of view.
func (s *Store) InsertItem(ctx context.Context, item digest.Item) error {
	author := NormalizeAuthor(item.Author)

	found, err := s.Exists(ctx, author, item.Content)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: @%s", digest.ErrAlreadyExists, author)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, author, content, created_at, url, likes, reposts, replies, quotes, is_thread, thread_length, summarized, topic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12)`,
		item.ID, author, item.Content, item.Timestamp.UTC(), item.URL,
		item.Engagement.Likes, item.Engagement.Reposts, item.Engagement.Replies, item.Engagement.Quotes,
		item.IsThread, item.ThreadLength, item.Topic)
	if err != nil {
		return fmt.Errorf("store: insert item %s: %w", item.ID, err)
	}
	return nil
}

const itemColumns = `id, author, content, created_at, url, likes, reposts, replies, quotes, is_thread, thread_length, summarized, topic`

// ItemsSince returns items created at or after since, oldest first.
func (s *Store) ItemsSince(ctx context.Context, since time.Time, unsummarizedOnly bool) ([]digest.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE created_at >= $1`
	if unsummarizedOnly {
		query += ` AND summarized = FALSE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: query items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ItemsBetween returns items created inside [from, to), oldest first.
func (s *Store) ItemsBetween(ctx context.Context, from, to time.Time) ([]digest.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: query items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]digest.Item, error) {
	var items []digest.Item
	for rows.Next() {
		var it digest.Item
		if err := rows.Scan(&it.ID, &it.Author, &it.Content, &it.Timestamp, &it.URL,
			&it.Engagement.Likes, &it.Engagement.Reposts, &it.Engagement.Replies, &it.Engagement.Quotes,
			&it.IsThread, &it.ThreadLength, &it.Summarized, &it.Topic); err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate items: %w", err)
	}
	return items, nil
}

// MarkSummarized flips the summarized flag for the given item ids.
func (s *Store) MarkSummarized(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET summarized = TRUE WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("store: mark summarized: %w", err)
	}
	return nil
}

// SaveReport persists a new report row with email_sent=false and returns it
// with its assigned id.
func (s *Store) SaveReport(ctx context.Context, report digest.Report) (digest.Report, error) {
	report.ID = uuid.NewString()
	report.EmailSent = false

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, summary, item_ids, report_date, email_sent)
		VALUES ($1, $2, $3, $4, FALSE)`,
		report.ID, report.Summary, pq.Array(report.ItemIDs), report.Date.UTC())
	if err != nil {
		return digest.Report{}, fmt.Errorf("store: save report: %w", err)
	}
	return report, nil
}

const reportColumns = `id, summary, item_ids, report_date, email_sent`

// ReportByDate returns the report for the given date or (nil, nil).
func (s *Store) ReportByDate(ctx context.Context, date time.Time) (*digest.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE report_date = $1`, date.UTC())
	return scanReport(row)
}

// LatestReport returns the most recent report or (nil, nil).
func (s *Store) LatestReport(ctx context.Context) (*digest.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY report_date DESC LIMIT 1`)
	return scanReport(row)
}

func scanReport(row *sql.Row) (*digest.Report, error) {
	var r digest.Report
	err := row.Scan(&r.ID, &r.Summary, pq.Array(&r.ItemIDs), &r.Date, &r.EmailSent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan report: %w", err)
	}
	return &r, nil
}

// MarkEmailSent flips the email_sent flag on a delivered report.
func (s *Store) MarkEmailSent(ctx context.Context, reportID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET email_sent = TRUE WHERE id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("store: mark report sent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: report %s not found", reportID)
	}
	return nil
}

// InsertSnapshot stores a metrics snapshot. If a snapshot for the same
// (start, end) window already exists the stored one is returned unchanged.
func (s *Store) InsertSnapshot(ctx context.Context, snap digest.MetricsSnapshot) (digest.MetricsSnapshot, error) {
	existing, err := s.snapshotByWindow(ctx, snap.StartDate, snap.EndDate)
	if err != nil {
		return digest.MetricsSnapshot{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	payload, err := json.Marshal(snap.Metrics)
	if err != nil {
		return digest.MetricsSnapshot{}, fmt.Errorf("store: encode metrics: %w", err)
	}

	snap.ID = uuid.NewString()
	snap.Covered = false
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics_snapshots (id, start_date, end_date, metrics, covered)
		VALUES ($1, $2, $3, $4, FALSE)`,
		snap.ID, snap.StartDate.UTC(), snap.EndDate.UTC(), payload)
	if err != nil {
		return digest.MetricsSnapshot{}, fmt.Errorf("store: insert snapshot: %w", err)
	}
	return snap, nil
}

const snapshotColumns = `id, start_date, end_date, metrics, covered`

func (s *Store) snapshotByWindow(ctx context.Context, start, end time.Time) (*digest.MetricsSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM metrics_snapshots WHERE start_date = $1 AND end_date = $2`,
		start.UTC(), end.UTC())
	return scanSnapshot(row)
}

// LatestUncoveredSnapshot returns the most recent snapshot that has not yet
// been incorporated into a sent report, or (nil, nil).
func (s *Store) LatestUncoveredSnapshot(ctx context.Context) (*digest.MetricsSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM metrics_snapshots WHERE covered = FALSE ORDER BY end_date DESC, created_at DESC LIMIT 1`)
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (*digest.MetricsSnapshot, error) {
	var snap digest.MetricsSnapshot
	var payload []byte
	err := row.Scan(&snap.ID, &snap.StartDate, &snap.EndDate, &payload, &snap.Covered)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan snapshot: %w", err)
	}
	if err := json.Unmarshal(payload, &snap.Metrics); err != nil {
		return nil, fmt.Errorf("store: decode metrics: %w", err)
	}
	return &snap, nil
}

// MarkCovered flips the covered flag on a consumed snapshot.
func (s *Store) MarkCovered(ctx context.Context, snapshotID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE metrics_snapshots SET covered = TRUE WHERE id = $1`, snapshotID)
	if err != nil {
		return fmt.Errorf("store: mark snapshot covered: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: snapshot %s not found", snapshotID)
	}
	return nil
}
