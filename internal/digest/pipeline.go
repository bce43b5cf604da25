package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"macropulse/internal/logging"
	"macropulse/internal/twitter"
)

// Fetcher abstracts the upstream source client.
type Fetcher interface {
	FetchRecent(ctx context.Context, handle string, since time.Time) ([]twitter.Tweet, error)
}

// ItemStore is the persistence surface the pipeline depends on. Lookup
// methods return (nil, nil) when no row matches.
type ItemStore interface {
	InsertItem(ctx context.Context, item Item) error
	ItemsSince(ctx context.Context, since time.Time, unsummarizedOnly bool) ([]Item, error)
	MarkSummarized(ctx context.Context, ids []string) error
	SaveReport(ctx context.Context, report Report) (Report, error)
	ReportByDate(ctx context.Context, date time.Time) (*Report, error)
	MarkEmailSent(ctx context.Context, reportID string) error
	LatestUncoveredSnapshot(ctx context.Context) (*MetricsSnapshot, error)
	MarkCovered(ctx context.Context, snapshotID string) error
}

// SummaryService produces digest prose from ranked items.
type SummaryService interface {
	Summarize(ctx context.Context, items []Item) (string, error)
}

// Sender delivers a finished report. It must confirm success synchronously.
type Sender interface {
	Send(ctx context.Context, subject, htmlBody, textBody string) error
}

// RunStats summarizes one run for logs and exit reporting.
type RunStats struct {
	ItemsIngested     int
	DuplicatesSkipped int
	AccountsFailed    int
	ItemsReported     int
	ReportID          string
	Delivered         bool
	NothingToDo       bool
}

// Options carries the roster and tuning knobs for a Pipeline.
type Options struct {
	Handles           []string
	Topic             string
	Window            time.Duration
	MinEngagement     int
	InterAccountDelay time.Duration
}

// Pipeline drives one run end to end: fetch each roster account, merge
// threads, store items, then rank the unsummarized window, summarize and
// deliver it, and flip lifecycle flags only after confirmed delivery.
type Pipeline struct {
	fetcher    Fetcher
	store      ItemStore
	summarizer SummaryService
	sender     Sender
	logger     logging.Logger
	opts       Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline constructs a Pipeline.
func NewPipeline(fetcher Fetcher, store ItemStore, summarizer SummaryService, sender Sender, logger logging.Logger, opts Options) (*Pipeline, error) {
	if store == nil || sender == nil {
		return nil, errors.New("pipeline requires a store and a sender")
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Topic == "" {
		opts.Topic = "macro"
	}
	return &Pipeline{
		fetcher:    fetcher,
		store:      store,
		summarizer: summarizer,
		sender:     sender,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

// Run ingests the roster and then reports on the window.
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	stats, err := p.Ingest(ctx)
	if err != nil {
		return stats, err
	}
	if err := p.Report(ctx, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// Ingest walks the roster in order, fetching, thread-merging and storing each
// account's recent posts. A failing account is logged and skipped; only
// cancellation aborts the walk.
func (p *Pipeline) Ingest(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}
	if p.fetcher == nil {
		return stats, errors.New("pipeline has no fetcher configured")
	}
	since := p.now().Add(-p.opts.Window)

	for i, handle := range p.opts.Handles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if i > 0 && p.opts.InterAccountDelay > 0 {
			if err := p.sleep(ctx, p.opts.InterAccountDelay); err != nil {
				return stats, err
			}
		}

		tweets, err := p.fetcher.FetchRecent(ctx, handle, since)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.AccountsFailed++
			p.logger.WithFields(logging.Fields{"account": handle, "error": err.Error()}).Warn("account fetch failed, continuing roster")
			continue
		}

		for _, item := range AggregateThreads(tweets) {
			item.Topic = p.opts.Topic
			switch err := p.store.InsertItem(ctx, item); {
			case err == nil:
				stats.ItemsIngested++
			case errors.Is(err, ErrAlreadyExists):
				stats.DuplicatesSkipped++
			default:
				p.logger.WithFields(logging.Fields{"item": item.ID, "error": err.Error()}).Error("item insert failed, skipping item")
			}
		}
	}

	p.logger.WithFields(logging.Fields{
		"ingested":   stats.ItemsIngested,
		"duplicates": stats.DuplicatesSkipped,
		"failed":     stats.AccountsFailed,
	}).Info("ingestion finished")
	return stats, nil
}

// Report runs the two-stage lifecycle for today's digest. If an unsent report
// already exists for the date it is re-delivered rather than regenerated; no
// second row is ever created for the same date.
func (p *Pipeline) Report(ctx context.Context, stats *RunStats) error {
	date := p.now().UTC().Truncate(24 * time.Hour)

	existing, err := p.store.ReportByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("%w: lookup report for %s: %v", ErrReportPersist, date.Format("2006-01-02"), err)
	}
	if existing != nil {
		if existing.EmailSent {
			p.logger.WithFields(logging.Fields{"report": existing.ID}).Info("report already sent, nothing to do")
			stats.NothingToDo = true
			return nil
		}
		p.logger.WithFields(logging.Fields{"report": existing.ID}).Info("unsent report found, re-attempting delivery")
		return p.deliver(ctx, stats, *existing)
	}

	items, err := p.store.ItemsSince(ctx, p.now().Add(-p.opts.Window), true)
	if err != nil {
		return fmt.Errorf("select unsummarized window: %w", err)
	}
	ranked := Rank(items, p.opts.MinEngagement)
	if len(ranked) == 0 {
		p.logger.Info("no eligible items in window, nothing to do")
		stats.NothingToDo = true
		return nil
	}

	if p.summarizer == nil {
		return errors.New("pipeline has no summarizer configured")
	}
	summary, err := p.summarizer.Summarize(ctx, ranked)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSummaryGeneration, err)
	}

	ids := make([]string, 0, len(ranked))
	for _, item := range ranked {
		ids = append(ids, item.ID)
	}
	report, err := p.store.SaveReport(ctx, Report{Summary: summary, ItemIDs: ids, Date: date})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReportPersist, err)
	}

	return p.deliver(ctx, stats, report)
}

func (p *Pipeline) deliver(ctx context.Context, stats *RunStats, report Report) error {
	subject := fmt.Sprintf("Daily %s digest, %s", p.opts.Topic, report.Date.Format("Jan 2 2006"))
	html := FormatEmailHTML(subject, report.Summary)
	text := FormatEmailText(subject, report.Summary)

	if err := p.sender.Send(ctx, subject, html, text); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	// Delivery is confirmed; flag flips happen only past this point.
	if err := p.store.MarkSummarized(ctx, report.ItemIDs); err != nil {
		return fmt.Errorf("mark items summarized after send: %w", err)
	}
	if err := p.store.MarkEmailSent(ctx, report.ID); err != nil {
		return fmt.Errorf("mark report sent after send: %w", err)
	}

	stats.ItemsReported = len(report.ItemIDs)
	stats.ReportID = report.ID
	stats.Delivered = true
	p.logger.WithFields(logging.Fields{"report": report.ID, "items": len(report.ItemIDs)}).Info("report delivered")
	return nil
}

// MetricsReport sends the most recent uncovered metrics snapshot and marks it
// covered on confirmed delivery. At most one snapshot is consumed per run.
func (p *Pipeline) MetricsReport(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	snap, err := p.store.LatestUncoveredSnapshot(ctx)
	if err != nil {
		return stats, fmt.Errorf("select uncovered snapshot: %w", err)
	}
	if snap == nil {
		p.logger.Info("no uncovered snapshot, nothing to do")
		stats.NothingToDo = true
		return stats, nil
	}

	subject, html, text := FormatMetricsEmail(*snap)
	if err := p.sender.Send(ctx, subject, html, text); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if err := p.store.MarkCovered(ctx, snap.ID); err != nil {
		return stats, fmt.Errorf("mark snapshot covered after send: %w", err)
	}

	stats.ReportID = snap.ID
	stats.Delivered = true
	p.logger.WithFields(logging.Fields{"snapshot": snap.ID}).Info("metrics report delivered")
	return stats, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
