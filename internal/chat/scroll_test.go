package chat

import "testing"

func TestPrependDelta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		before int
		after  int
		want   int
	}{
		{name: "growth", before: 100, after: 160, want: 60},
		{name: "no change", before: 42, after: 42, want: 0},
		{name: "zero before", before: 0, after: 25, want: 25},
		{name: "shrink", before: 80, after: 50, want: -30},
	}

	for _, tc := range cases {
		if got := PrependDelta(tc.before, tc.after); got != tc.want {
			t.Fatalf("%s: PrependDelta(%d, %d)=%d want=%d", tc.name, tc.before, tc.after, got, tc.want)
		}
	}
}

func TestPrependDeltaDependsOnlyOnHeights(t *testing.T) {
	t.Parallel()

	// The reconciler is a pure height-diff; identical height pairs must give
	// identical deltas regardless of what produced them.
	for before := 0; before < 50; before += 7 {
		for after := 0; after < 50; after += 5 {
			first := PrependDelta(before, after)
			second := PrependDelta(before, after)
			if first != second || first != after-before {
				t.Fatalf("PrependDelta(%d, %d) not pure: got %d and %d", before, after, first, second)
			}
		}
	}
}
