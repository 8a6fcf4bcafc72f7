package pageviews

import (
	"testing"
	"time"
)

func TestURL(t *testing.T) {
	tests := []struct {
		base string
		ts   time.Time
		want string
	}{
		{
			base: "https://dumps.wikimedia.org/",
			ts:   time.Date(2024, 8, 18, 10, 0, 0, 0, time.UTC),
			want: "https://dumps.wikimedia.org/other/pageviews/2024/2024-08/pageviews-20240818-100000.gz",
		},
		{
			base: "https://mirror.accum.se/mirror/wikimedia.org/",
			ts:   time.Date(2024, 8, 24, 9, 0, 0, 0, time.UTC),
			want: "https://mirror.accum.se/mirror/wikimedia.org/other/pageviews/2024/2024-08/pageviews-20240824-090000.gz",
		},
		{
			base: "s3://wikimedia-mirror",
			ts:   time.Date(2023, 1, 2, 23, 0, 0, 0, time.UTC),
			want: "s3://wikimedia-mirror/other/pageviews/2023/2023-01/pageviews-20230102-230000.gz",
		},
		{
			base: "/srv/dumps/",
			ts:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.FixedZone("CEST", 2*60*60)),
			want: "/srv/dumps/other/pageviews/2024/2024-03/pageviews-20240330-220000.gz",
		},
	}

	for _, tt := range tests {
		if got := URL(tt.base, tt.ts); got != tt.want {
			t.Errorf("URL(%q, %s) = %q, want %q", tt.base, tt.ts, got, tt.want)
		}
	}
}
