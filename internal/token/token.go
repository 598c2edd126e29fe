package token

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/synapse-pkm/synapse-whatsapp/internal/types"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/auth"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
)

// Create issues a control-API JWT. Guarded by the admin secret.
func Create(c *fiber.Ctx) error {
	var req types.RequestCreateToken
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	client := strings.TrimSpace(req.Client)
	if client == "" {
		return router.ResponseBadRequest(c, "client is required")
	}
	if req.Version <= 0 {
		req.Version = 1
	}

	signed, err := auth.GenerateControlToken(client, req.Version)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseCreatedWithData(c, "Success create token", types.ResponseToken{Token: signed})
}
