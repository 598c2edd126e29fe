package internal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/env"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/log"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/whatsapp"
)

// Routines registers the periodic liveness probe and the cache eviction pass.
func Routines(c *cron.Cron, svc *whatsapp.Service) {
	log.Print(nil).Info("Running Routine Tasks")

	probeSpec := env.GetEnvStringOrDefault("WHATSAPP_PROBE_CRON", "0 * * * * *")
	if _, err := c.AddFunc(probeSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		svc.Probe(ctx)
	}); err != nil {
		log.Print(nil).WithField("error", err.Error()).Error("Failed to add liveness probe cron job")
	}

	evictSpec := env.GetEnvStringOrDefault("WHATSAPP_EVICTION_CRON", "0 */5 * * * *")
	if _, err := c.AddFunc(evictSpec, func() {
		svc.EvictCache(time.Now())
	}); err != nil {
		log.Print(nil).WithField("error", err.Error()).Error("Failed to add cache eviction cron job")
	}

	c.Start()
}
