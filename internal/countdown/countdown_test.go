package countdown

import (
	"testing"
	"time"
)

func TestHumanize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "now"},
		{0, "now"},
		{30 * time.Second, "less than a minute"},
		{time.Minute, "1 minute"},
		{59*time.Minute + 59*time.Second, "59 minutes"},
		{time.Hour, "1 hour"},
		{time.Hour + 59*time.Minute, "1 hour"},
		{23 * time.Hour, "23 hours"},
		{24 * time.Hour, "1 day"},
		{3*24*time.Hour + 23*time.Hour, "3 days"},
	}
	for _, c := range cases {
		if got := Humanize(c.in); got != c.want {
			t.Fatalf("Humanize(%v)=%q, want %q", c.in, got, c.want)
		}
	}
}
