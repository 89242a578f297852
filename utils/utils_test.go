package utils

import (
	"reflect"
	"testing"
)

func TestAnswersMatch(t *testing.T) {
	cases := []struct {
		expected, submitted string
		want                bool
	}{
		{"Paris", "paris", true},
		{"Paris", "  PARIS  ", true},
		{"Paris", "Lyon", false},
		{"", "", true},
	}

	for _, c := range cases {
		if got := AnswersMatch(c.expected, c.submitted); got != c.want {
			t.Errorf("AnswersMatch(%q, %q) = %v, want %v", c.expected, c.submitted, got, c.want)
		}
	}
}

func TestClampInt(t *testing.T) {
	if got := ClampInt(0, 1, 20); got != 1 {
		t.Errorf("ClampInt(0,1,20) = %d, want 1", got)
	}
	if got := ClampInt(50, 1, 20); got != 20 {
		t.Errorf("ClampInt(50,1,20) = %d, want 20", got)
	}
	if got := ClampInt(7, 1, 20); got != 7 {
		t.Errorf("ClampInt(7,1,20) = %d, want 7", got)
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(66.666666); got != 66.67 {
		t.Errorf("Round2(66.666666) = %v, want 66.67", got)
	}
	if got := Round2(50); got != 50 {
		t.Errorf("Round2(50) = %v, want 50", got)
	}
}

func TestUniqueStrings(t *testing.T) {
	got := UniqueStrings([]string{"alg.1", " alg.1 ", "", "geo.2", "alg.1"})
	want := []string{"alg.1", "geo.2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UniqueStrings = %v, want %v", got, want)
	}

	if got := UniqueStrings(nil); got != nil {
		t.Errorf("UniqueStrings(nil) = %v, want nil", got)
	}
}
