package resolvename

import "testing"

func TestIsExitName(t *testing.T) {
	cases := map[string]bool{
		"foo.exit":     true,
		"bar.exit.":    false,
		"deadbeef":     false,
		"my-svc.exit":  true,
	}
	for in, want := range cases {
		if got := IsExitName(in); got != want {
			t.Errorf("IsExitName(%q) = %v, want %v", in, got, want)
		}
	}
}
