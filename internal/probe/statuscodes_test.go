package probe

import "testing"

func TestIsExpectedStatus(t *testing.T) {
	cases := []struct {
		code     int
		patterns []string
		want     bool
	}{
		{200, []string{"2xx"}, true},
		{299, []string{"2xx"}, true},
		{300, []string{"2xx"}, false},
		{200, []string{"200-299"}, true},
		{299, []string{"200-299"}, true},
		{300, []string{"200-299"}, false},
		{404, []string{"404"}, true},
		{403, []string{"404"}, false},
		{301, []string{"200, 301-302"}, true},
		{201, nil, true},
		{503, nil, false},
		{200, []string{"9xx", "abc", ""}, false},
	}
	for _, c := range cases {
		if got := IsExpectedStatus(c.code, c.patterns); got != c.want {
			t.Errorf("IsExpectedStatus(%d, %v) = %v, want %v", c.code, c.patterns, got, c.want)
		}
	}
}
