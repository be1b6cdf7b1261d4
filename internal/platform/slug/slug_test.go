package slug_test

import (
	"strings"
	"testing"

	"minesync/internal/platform/slug"
)

func TestMake(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"Alice Smith", "alice-smith"},
		{"  bob__42 ", "bob-42"},
		{"***", "user"},
		{"", "user"},
		{strings.Repeat("ab-", 20), "ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab"},
	}
	for _, tc := range cases {
		if got := slug.Make(tc.in, "user"); got != tc.want {
			t.Fatalf("Make(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
