package database

import "testing"

func TestImmediateTxLock(t *testing.T) {
	cases := map[string]string{
		"state.sqlite": "state.sqlite?_txlock=immediate",
		".state/x.sqlite?_pragma=busy_timeout(5000)": ".state/x.sqlite?_pragma=busy_timeout(5000)&_txlock=immediate",
		"x.sqlite?_txlock=exclusive":                 "x.sqlite?_txlock=exclusive",
		"file::memory:":                              "file::memory:",
		"":                                           "",
	}
	for in, want := range cases {
		if got := ImmediateTxLock(in); got != want {
			t.Fatalf("ImmediateTxLock(%q) = %q, want %q", in, got, want)
		}
	}
}
