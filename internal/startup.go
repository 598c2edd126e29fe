package internal

import (
	"context"
	mathrand "math/rand/v2"
	"time"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/env"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/log"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/whatsapp"
)

func jitterSleep(max time.Duration) {
	if max <= 0 {
		return
	}
	ms := mathrand.Int64N(max.Milliseconds() + 1)
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Startup brings the connection service up in the background. Failed attempts
// retry with exponential backoff; the HTTP surface stays available either way
// so an operator can pair or inspect status.
func Startup(svc *whatsapp.Service) {
	log.Print(nil).Info("Running Startup Tasks")

	autostart := env.GetEnvBoolOrDefault("WHATSAPP_AUTOSTART", true)
	if !autostart {
		log.Print(nil).Info("Autostart disabled; waiting for initialize request")
		return
	}

	retries := env.GetEnvIntOrDefault("WHATSAPP_STARTUP_RETRIES", 5)
	baseBackoff := env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_BACKOFF_BASE", 2*time.Second)
	maxBackoff := env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_BACKOFF_MAX", 30*time.Second)
	jitterMax := env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_JITTER_MAX", 2*time.Second)

	go func() {
		jitterSleep(jitterMax)

		var lastErr error
		for attempt := 1; attempt <= retries; attempt++ {
			if attempt == 1 {
				lastErr = svc.Start(context.Background())
			} else {
				lastErr = svc.Restart(context.Background())
			}
			if lastErr == nil {
				return
			}

			backoff := baseBackoff * time.Duration(1<<(attempt-1))
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			jitter := time.Duration(mathrand.Int64N(int64(500*time.Millisecond) + 1))
			log.Print(nil).Warn("Startup connect failed, retrying: " + lastErr.Error())
			time.Sleep(backoff + jitter)
		}
		log.Print(nil).Error("Startup connect failed after retries: " + lastErr.Error())
	}()
}
