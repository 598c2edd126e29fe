package keywords

import (
	"github.com/gofiber/fiber/v2"

	"github.com/synapse-pkm/synapse-whatsapp/internal/types"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/whatsapp"
)

// Controller manages the monitored keyword list.
type Controller struct {
	svc *whatsapp.Service
}

func NewController(svc *whatsapp.Service) *Controller {
	return &Controller{svc: svc}
}

func (ct *Controller) List(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get monitored keywords", ct.svc.Keywords())
}

func (ct *Controller) Add(c *fiber.Ctx) error {
	var req types.RequestKeyword
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	added, err := ct.svc.AddKeyword(req.Keyword)
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if !added {
		return router.ResponseConflict(c, "Keyword already monitored")
	}
	return router.ResponseSuccessWithData(c, "Success add monitored keyword", ct.svc.Keywords())
}

func (ct *Controller) Remove(c *fiber.Ctx) error {
	keyword := c.Params("keyword")
	removed, err := ct.svc.RemoveKeyword(keyword)
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if !removed {
		return router.ResponseNotFound(c, "Keyword is not monitored")
	}
	return router.ResponseSuccessWithData(c, "Success remove monitored keyword", ct.svc.Keywords())
}
