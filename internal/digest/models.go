package digest

import "time"

// Engagement holds the interaction counters attached to a post or thread.
type Engagement struct {
	Likes   int `json:"likes"`
	Reposts int `json:"reposts"`
	Replies int `json:"replies"`
	Quotes  int `json:"quotes"`
}

// Item represents a stored post, or a whole conversation thread merged into
// one logical unit. Uniqueness is on (author, content), enforced by the store.
type Item struct {
	ID           string     `json:"id"`
	Author       string     `json:"author"`
	Content      string     `json:"content"`
	Timestamp    time.Time  `json:"timestamp"`
	URL          string     `json:"url"`
	Engagement   Engagement `json:"engagement"`
	IsThread     bool       `json:"is_thread"`
	ThreadLength int        `json:"thread_length"`
	Summarized   bool       `json:"summarized"`
	Topic        string     `json:"topic"`
}

// Report is one generated digest. It is created once per run and mutated
// exactly once, when delivery is confirmed.
type Report struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	ItemIDs   []string  `json:"item_ids"`
	Date      time.Time `json:"date"`
	EmailSent bool      `json:"email_sent"`
}

// MetricValue pairs a metric's current and previous readings with their
// display forms.
type MetricValue struct {
	Current           float64 `json:"current"`
	Previous          float64 `json:"previous"`
	FormattedCurrent  string  `json:"formatted_current"`
	FormattedPrevious string  `json:"formatted_previous"`
	FormattedDelta    string  `json:"formatted_delta"`
}

// MetricsSnapshot captures protocol metrics for one reporting window. A
// snapshot is consumed at most once: sending a metrics report flips covered.
type MetricsSnapshot struct {
	ID        string                 `json:"id"`
	StartDate time.Time              `json:"start_date"`
	EndDate   time.Time              `json:"end_date"`
	Metrics   map[string]MetricValue `json:"metrics"`
	Covered   bool                   `json:"covered"`
}
