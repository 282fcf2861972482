package request

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusOpen, StatusPending, true},
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusCancelled, true},
		{StatusApproved, StatusCompleted, true},
		{StatusOpen, StatusApproved, false},
		{StatusOpen, StatusCancelled, false},
		{StatusApproved, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusApproved, false},
		{StatusCompleted, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusCompleted} {
		if !Terminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusOpen, StatusPending, StatusApproved} {
		if Terminal(s) {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}
