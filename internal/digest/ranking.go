package digest

import "sort"

// Score computes the weighted engagement score used to rank items. Replies
// carry the strongest signal, reposts and quotes count double, likes single.
func Score(e Engagement) int {
	return e.Likes + 2*e.Reposts + 3*e.Replies + 2*e.Quotes
}

// Rank drops items scoring below minEngagement and sorts the rest by score,
// highest first. Ties keep their original relative order.
func Rank(items []Item, minEngagement int) []Item {
	ranked := make([]Item, 0, len(items))
	for _, item := range items {
		if Score(item.Engagement) < minEngagement {
			continue
		}
		ranked = append(ranked, item)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i].Engagement) > Score(ranked[j].Engagement)
	})

	return ranked
}
