package whatsapp

import (
	"fmt"
	mathrand "math/rand/v2"
	"time"
)

// DisconnectReason is the structured classification assigned at the transport
// adapter boundary. Recovery policy branches on this enum only, never on error
// text from the underlying library.
type DisconnectReason int

const (
	ReasonGeneric DisconnectReason = iota
	ReasonTimeout
	ReasonConflict
	ReasonLoggedOut
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonConflict:
		return "conflict"
	case ReasonLoggedOut:
		return "logged_out"
	default:
		return "generic"
	}
}

// reconnectPlan is the recovery decision for a single disconnect.
type reconnectPlan struct {
	Retry     bool
	Delay     time.Duration
	Jitter    bool
	ClearAuth bool
	Terminal  ConnectionStatus
	Message   string
}

// planReconnect maps a disconnect reason and the 1-based attempt number onto
// the documented recovery schedule. It is deterministic; jitter is applied by
// the scheduler when Jitter is set.
func planReconnect(reason DisconnectReason, attempt int, cfg BackoffConfig) reconnectPlan {
	switch reason {
	case ReasonConflict:
		if attempt > cfg.ConflictMaxAttempts {
			return reconnectPlan{
				Terminal: StatusConflictFailed,
				Message:  "Session conflict - manual restart required",
			}
		}
		return reconnectPlan{
			Retry:     true,
			Delay:     cfg.ConflictBase + time.Duration(attempt-1)*cfg.ConflictStep,
			ClearAuth: true,
			Message:   fmt.Sprintf("Session conflict, retrying with fresh credentials (attempt %d/%d)", attempt, cfg.ConflictMaxAttempts),
		}

	case ReasonTimeout:
		plan := reconnectPlan{Retry: true}
		switch {
		case attempt <= 2:
			plan.Delay = cfg.TimeoutShort
		case attempt <= 5:
			plan.Delay = cfg.TimeoutMedium
		default:
			plan.Delay = cfg.TimeoutLong
			plan.ClearAuth = true
		}
		plan.Message = fmt.Sprintf("Connection timed out, reconnecting (attempt %d)", attempt)
		return plan

	case ReasonLoggedOut:
		// The session is permanently invalid; retrying with the same
		// credentials cannot succeed.
		return reconnectPlan{
			ClearAuth: true,
			Terminal:  StatusAuthFailed,
			Message:   "Logged out - re-pairing required",
		}

	default:
		if attempt > cfg.GenericMaxAttempts {
			return reconnectPlan{
				Terminal: StatusFailed,
				Message:  "Reconnect attempts exhausted - manual restart required",
			}
		}
		delay := cfg.GenericBase
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * cfg.GenericMultiplier)
			if delay >= cfg.GenericMax {
				delay = cfg.GenericMax
				break
			}
		}
		if delay > cfg.GenericMax {
			delay = cfg.GenericMax
		}
		return reconnectPlan{
			Retry:   true,
			Delay:   delay,
			Jitter:  true,
			Message: fmt.Sprintf("Disconnected, reconnecting (attempt %d/%d)", attempt, cfg.GenericMaxAttempts),
		}
	}
}

// applyJitter spreads a delay by +/- fraction to avoid synchronized retries.
func applyJitter(d time.Duration, fraction float64) time.Duration {
	if d <= 0 || fraction <= 0 {
		return d
	}
	span := float64(d) * fraction
	offset := (mathrand.Float64()*2 - 1) * span
	jittered := time.Duration(float64(d) + offset)
	if jittered < 0 {
		return 0
	}
	return jittered
}
