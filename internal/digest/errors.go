package digest

import "errors"

// Sentinel errors for the outcomes callers branch on. Stores and pipelines
// wrap these so errors.Is works across layers.
var (
	// ErrAlreadyExists marks a duplicate (author, content) insert. Not a
	// failure, the orchestrator counts and skips it.
	ErrAlreadyExists = errors.New("item already exists")

	// ErrSummaryGeneration marks a failed summarizer call. Items stay
	// unsummarized and the next run retries them.
	ErrSummaryGeneration = errors.New("summary generation failed")

	// ErrReportPersist marks a failure to durably record a report before
	// delivery. Run-fatal: never send without a record.
	ErrReportPersist = errors.New("report persist failed")

	// ErrDeliveryFailed marks a failed send. The report row stays with
	// email_sent=false and the next run re-attempts it.
	ErrDeliveryFailed = errors.New("delivery failed")
)
