package digest

import "testing"

func TestScoreWeights(t *testing.T) {
	cases := []struct {
		name string
		e    Engagement
		want int
	}{
		{"likes count single", Engagement{Likes: 1}, 1},
		{"replies count triple", Engagement{Replies: 1}, 3},
		{"reposts count double", Engagement{Reposts: 1}, 2},
		{"quotes count double", Engagement{Quotes: 1}, 2},
		{"mixed", Engagement{Likes: 4, Reposts: 1, Replies: 2, Quotes: 3}, 18},
	}
	for _, tc := range cases {
		if got := Score(tc.e); got != tc.want {
			t.Errorf("%s: score = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestRankSortsDescendingAndFilters(t *testing.T) {
	items := []Item{
		{ID: "likes-only", Engagement: Engagement{Likes: 1}},
		{ID: "one-reply", Engagement: Engagement{Replies: 1}},
		{ID: "silent", Engagement: Engagement{}},
	}

	ranked := Rank(items, 1)
	if len(ranked) != 2 {
		t.Fatalf("expected silent item filtered out, got %d items", len(ranked))
	}
	if ranked[0].ID != "one-reply" || ranked[1].ID != "likes-only" {
		t.Fatalf("unexpected order: %q then %q", ranked[0].ID, ranked[1].ID)
	}
}

func TestRankIsStableOnTies(t *testing.T) {
	items := []Item{
		{ID: "first", Engagement: Engagement{Likes: 2}},
		{ID: "second", Engagement: Engagement{Reposts: 1}},
		{ID: "third", Engagement: Engagement{Quotes: 1}},
	}

	ranked := Rank(items, 0)
	if ranked[0].ID != "first" || ranked[1].ID != "second" || ranked[2].ID != "third" {
		t.Fatalf("equal scores must keep input order, got %q %q %q", ranked[0].ID, ranked[1].ID, ranked[2].ID)
	}
}
