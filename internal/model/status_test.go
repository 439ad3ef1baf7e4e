package model

import "testing"

func TestClassifyTable(t *testing.T) {
	cases := []struct {
		raw     string
		verdict Verdict
	}{
		{RawSubmitted, VerdictPending},
		{RawPending, VerdictPending},
		{RawRunnable, VerdictPending},
		{RawStarting, VerdictPending},
		{RawRunning, VerdictRunning},
		{RawSucceeded, VerdictSucceeded},
		{RawFailed, VerdictFailed},
		{RawCancelled, VerdictCancelled},
		{RawTerminated, VerdictCancelled},
	}
	for _, c := range cases {
		verdict, known := Classify(c.raw)
		if !known {
			t.Errorf("Classify(%q): known = false, want true", c.raw)
		}
		if verdict != c.verdict {
			t.Errorf("Classify(%q) = %v, want %v", c.raw, verdict, c.verdict)
		}
	}
}

func TestClassifyUnknownDefaultsToPending(t *testing.T) {
	for _, raw := range []string{"", "MIGRATING", "submitted", "Succeeded"} {
		verdict, known := Classify(raw)
		if known {
			t.Errorf("Classify(%q): known = true, want false", raw)
		}
		if verdict != VerdictPending {
			t.Errorf("Classify(%q) = %v, want PENDING", raw, verdict)
		}
		if verdict.Terminal() {
			t.Errorf("Classify(%q) produced a terminal verdict", raw)
		}
	}
}

func TestVerdictTerminal(t *testing.T) {
	terminal := []Verdict{VerdictSucceeded, VerdictFailed, VerdictCancelled}
	for _, v := range terminal {
		if !v.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", v)
		}
	}
	for _, v := range []Verdict{VerdictPending, VerdictRunning} {
		if v.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", v)
		}
	}
}
