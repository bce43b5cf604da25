package digest

import (
	"fmt"
	"sort"
	"strings"

	"macropulse/internal/twitter"
)

// AggregateThreads groups one account's raw tweets by conversation and merges
// every multi-post conversation into a single Item. A tweet whose conversation
// id equals its own id and has no siblings passes through as a standalone
// post. Merged threads keep the earliest timestamp, concatenate the segments
// in posting order, and sum engagement counters across segments.
func AggregateThreads(tweets []twitter.Tweet) []Item {
	if len(tweets) == 0 {
		return nil
	}

	groups := make(map[string][]twitter.Tweet)
	order := make([]string, 0, len(tweets))
	for _, tw := range tweets {
		key := tw.ConversationID
		if key == "" {
			key = tw.ID
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], tw)
	}

	items := make([]Item, 0, len(order))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			items = append(items, standaloneItem(group[0]))
			continue
		}
		items = append(items, mergeThread(key, group))
	}
	return items
}

func standaloneItem(tw twitter.Tweet) Item {
	return Item{
		ID:           tw.ID,
		Author:       tw.AuthorHandle,
		Content:      tw.Text,
		Timestamp:    tw.CreatedAt,
		URL:          twitter.StatusURL(tw.AuthorHandle, tw.ID),
		Engagement:   toEngagement(tw.Metrics),
		IsThread:     false,
		ThreadLength: 1,
	}
}

func mergeThread(conversationID string, group []twitter.Tweet) Item {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].CreatedAt.Before(group[j].CreatedAt)
	})

	segments := make([]string, 0, len(group))
	var total Engagement
	for _, tw := range group {
		segments = append(segments, fmt.Sprintf("@%s: %s", tw.AuthorHandle, tw.Text))
		total.Likes += tw.Metrics.Likes
		total.Reposts += tw.Metrics.Reposts
		total.Replies += tw.Metrics.Replies
		total.Quotes += tw.Metrics.Quotes
	}

	return Item{
		ID:           conversationID,
		Author:       group[0].AuthorHandle,
		Content:      strings.Join(segments, "\n\n"),
		Timestamp:    group[0].CreatedAt,
		URL:          twitter.StatusURL(group[0].AuthorHandle, conversationID),
		Engagement:   total,
		IsThread:     true,
		ThreadLength: len(group),
	}
}

func toEngagement(m twitter.Metrics) Engagement {
	return Engagement{Likes: m.Likes, Reposts: m.Reposts, Replies: m.Replies, Quotes: m.Quotes}
}
