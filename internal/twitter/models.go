package twitter

import "time"

// Metrics carries the public engagement counters of a single tweet.
type Metrics struct {
	Likes   int
	Reposts int
	Replies int
	Quotes  int
}

// Tweet is one raw post as returned by the upstream listing call, before
// thread aggregation.
type Tweet struct {
	ID             string
	Text           string
	AuthorHandle   string
	AuthorID       string
	ConversationID string
	CreatedAt      time.Time
	Metrics        Metrics
}

// StatusURL builds the canonical web URL for a tweet or conversation id.
func StatusURL(handle, id string) string {
	return "https://twitter.com/" + handle + "/status/" + id
}
