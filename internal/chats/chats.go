package chats

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/whatsapp"
)

// Controller serves the cached chat directories and message buffers.
type Controller struct {
	svc *whatsapp.Service
}

func NewController(svc *whatsapp.Service) *Controller {
	return &Controller{svc: svc}
}

func (ct *Controller) Groups(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get groups", ct.svc.Groups())
}

func (ct *Controller) PrivateChats(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get private chats", ct.svc.PrivateChats())
}

// Refresh re-reads the joined group list from the transport.
func (ct *Controller) Refresh(c *fiber.Ctx) error {
	if err := ct.svc.RefreshChats(c.UserContext()); err != nil {
		if err == whatsapp.ErrNotReady {
			return router.ResponseServiceUnavailable(c, err.Error())
		}
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccess(c, "Success refresh chat directory")
}

// Messages returns the buffered messages of one chat, newest first.
func (ct *Controller) Messages(c *fiber.Ctx) error {
	chatID := strings.TrimSpace(c.Params("chat_id"))
	if chatID == "" {
		return router.ResponseBadRequest(c, "chat_id is required")
	}
	return router.ResponseSuccessWithData(c, "Success get messages", ct.svc.Messages(chatID))
}

// Recent returns the newest messages across all chats.
func (ct *Controller) Recent(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return router.ResponseSuccessWithData(c, "Success get recent messages", ct.svc.RecentMessages(limit))
}
