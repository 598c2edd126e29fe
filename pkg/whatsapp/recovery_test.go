package whatsapp

import (
	"testing"
	"time"
)

func testBackoffConfig() BackoffConfig {
	return BackoffConfig{
		GenericBase:         5 * time.Second,
		GenericMultiplier:   2,
		GenericMax:          5 * time.Minute,
		GenericMaxAttempts:  10,
		JitterFraction:      0.25,
		ConflictBase:        90 * time.Second,
		ConflictStep:        60 * time.Second,
		ConflictMaxAttempts: 3,
		TimeoutShort:        5 * time.Second,
		TimeoutMedium:       30 * time.Second,
		TimeoutLong:         5 * time.Minute,
	}
}

func TestPlanReconnectConflictSchedule(t *testing.T) {
	cfg := testBackoffConfig()

	wantDelays := []time.Duration{90 * time.Second, 150 * time.Second, 210 * time.Second}
	for attempt, want := range wantDelays {
		plan := planReconnect(ReasonConflict, attempt+1, cfg)
		if !plan.Retry {
			t.Fatalf("attempt %d: expected retry", attempt+1)
		}
		if plan.Delay != want {
			t.Fatalf("attempt %d: delay = %v, want %v", attempt+1, plan.Delay, want)
		}
		if !plan.ClearAuth {
			t.Fatalf("attempt %d: conflict retry must clear auth", attempt+1)
		}
		if plan.Jitter {
			t.Fatalf("attempt %d: conflict delays are fixed, no jitter", attempt+1)
		}
	}

	plan := planReconnect(ReasonConflict, 4, cfg)
	if plan.Retry {
		t.Fatal("attempt 4: expected terminal, got retry")
	}
	if plan.Terminal != StatusConflictFailed {
		t.Fatalf("attempt 4: terminal = %v, want %v", plan.Terminal, StatusConflictFailed)
	}
}

func TestPlanReconnectTimeoutTiers(t *testing.T) {
	cfg := testBackoffConfig()

	cases := []struct {
		attempt   int
		delay     time.Duration
		clearAuth bool
	}{
		{1, cfg.TimeoutShort, false},
		{2, cfg.TimeoutShort, false},
		{3, cfg.TimeoutMedium, false},
		{5, cfg.TimeoutMedium, false},
		{6, cfg.TimeoutLong, true},
		{9, cfg.TimeoutLong, true},
	}
	for _, tc := range cases {
		plan := planReconnect(ReasonTimeout, tc.attempt, cfg)
		if !plan.Retry {
			t.Fatalf("attempt %d: expected retry", tc.attempt)
		}
		if plan.Delay != tc.delay {
			t.Fatalf("attempt %d: delay = %v, want %v", tc.attempt, plan.Delay, tc.delay)
		}
		if plan.ClearAuth != tc.clearAuth {
			t.Fatalf("attempt %d: clearAuth = %v, want %v", tc.attempt, plan.ClearAuth, tc.clearAuth)
		}
	}
}

func TestPlanReconnectGenericBackoff(t *testing.T) {
	cfg := testBackoffConfig()

	wantDelays := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		5 * time.Minute,
		5 * time.Minute,
	}
	for attempt, want := range wantDelays {
		plan := planReconnect(ReasonGeneric, attempt+1, cfg)
		if !plan.Retry {
			t.Fatalf("attempt %d: expected retry", attempt+1)
		}
		if plan.Delay != want {
			t.Fatalf("attempt %d: delay = %v, want %v", attempt+1, plan.Delay, want)
		}
		if !plan.Jitter {
			t.Fatalf("attempt %d: generic delays carry jitter", attempt+1)
		}
		if plan.ClearAuth {
			t.Fatalf("attempt %d: generic retry must keep auth", attempt+1)
		}
	}

	plan := planReconnect(ReasonGeneric, cfg.GenericMaxAttempts+1, cfg)
	if plan.Retry {
		t.Fatal("expected terminal past the attempt cap")
	}
	if plan.Terminal != StatusFailed {
		t.Fatalf("terminal = %v, want %v", plan.Terminal, StatusFailed)
	}
}

func TestPlanReconnectLoggedOut(t *testing.T) {
	plan := planReconnect(ReasonLoggedOut, 1, testBackoffConfig())
	if plan.Retry {
		t.Fatal("logged out must not retry")
	}
	if !plan.ClearAuth {
		t.Fatal("logged out must clear auth")
	}
	if plan.Terminal != StatusAuthFailed {
		t.Fatalf("terminal = %v, want %v", plan.Terminal, StatusAuthFailed)
	}
}

func TestApplyJitterBounds(t *testing.T) {
	base := 10 * time.Second
	lo := time.Duration(float64(base) * 0.75)
	hi := time.Duration(float64(base) * 1.25)

	for i := 0; i < 1000; i++ {
		got := applyJitter(base, 0.25)
		if got < lo || got > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", got, lo, hi)
		}
	}

	if got := applyJitter(base, 0); got != base {
		t.Fatalf("zero fraction must be identity, got %v", got)
	}
	if got := applyJitter(0, 0.25); got != 0 {
		t.Fatalf("zero delay must stay zero, got %v", got)
	}
}

func TestDisconnectReasonString(t *testing.T) {
	cases := map[DisconnectReason]string{
		ReasonGeneric:   "generic",
		ReasonTimeout:   "timeout",
		ReasonConflict:  "conflict",
		ReasonLoggedOut: "logged_out",
	}
	for reason, want := range cases {
		if got := reason.String(); got != want {
			t.Fatalf("String(%d) = %q, want %q", reason, got, want)
		}
	}
}
