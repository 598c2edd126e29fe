package index

import (
	"github.com/gofiber/fiber/v2"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
)

func Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "Synapse WhatsApp Gateway is running")
}
