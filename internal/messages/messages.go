package messages

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/synapse-pkm/synapse-whatsapp/internal/types"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/validation"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/whatsapp"
)

// Controller handles outbound messages.
type Controller struct {
	svc *whatsapp.Service
}

func NewController(svc *whatsapp.Service) *Controller {
	return &Controller{svc: svc}
}

func (ct *Controller) SendText(c *fiber.Ctx) error {
	var req types.RequestSendText
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	to := strings.TrimSpace(req.To)
	if err := validation.ValidateChatID(to); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return router.ResponseBadRequest(c, "message is required")
	}

	id, err := ct.svc.SendText(c.UserContext(), to, req.Message)
	if err != nil {
		if err == whatsapp.ErrNotReady {
			return router.ResponseServiceUnavailable(c, err.Error())
		}
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccessWithData(c, "Success send message", types.ResponseSend{MessageID: id})
}

// SendImage accepts a multipart form with an image file, a destination and an
// optional caption.
func (ct *Controller) SendImage(c *fiber.Ctx) error {
	to := strings.TrimSpace(c.FormValue("to"))
	if err := validation.ValidateChatID(to); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	caption := c.FormValue("caption")

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return router.ResponseBadRequest(c, "image file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return router.ResponseInternalError(c, "Failed open uploaded image")
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return router.ResponseInternalError(c, "Failed read uploaded image")
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	id, err := ct.svc.SendImage(c.UserContext(), to, image, mimeType, caption)
	if err != nil {
		if err == whatsapp.ErrNotReady {
			return router.ResponseServiceUnavailable(c, err.Error())
		}
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccessWithData(c, "Success send image", types.ResponseSend{MessageID: id})
}
