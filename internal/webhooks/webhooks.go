package webhooks

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/synapse-pkm/synapse-whatsapp/internal/notify"
	"github.com/synapse-pkm/synapse-whatsapp/internal/types"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/validation"
)

// Controller manages webhook subscriptions for the notification channel.
type Controller struct {
	engine *notify.Engine
}

func NewController(engine *notify.Engine) *Controller {
	return &Controller{engine: engine}
}

func (ct *Controller) Register(c *fiber.Ctx) error {
	var req types.RequestRegisterWebhook
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	url := strings.TrimSpace(req.URL)
	if err := validation.ValidateURL(url); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := ct.engine.ValidateURL(url); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	sub, err := ct.engine.Store().Create(url, req.Secret, req.Events)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	sub.Secret = ""
	return router.ResponseCreatedWithData(c, "Success register webhook", sub)
}

func (ct *Controller) List(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get webhooks", ct.engine.Store().List())
}

func (ct *Controller) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := ct.engine.Store().Delete(id); err != nil {
		if err == notify.ErrSubscriptionNotFound {
			return router.ResponseNotFound(c, err.Error())
		}
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseNoContent(c)
}
