package session

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/synapse-pkm/synapse-whatsapp/internal/types"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/validation"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/whatsapp"
)

// Controller exposes the connection lifecycle over HTTP.
type Controller struct {
	svc *whatsapp.Service
}

func NewController(svc *whatsapp.Service) *Controller {
	return &Controller{svc: svc}
}

// Initialize starts the connection. Pairing progress is observable through
// the status and QR endpoints.
func (ct *Controller) Initialize(c *fiber.Ctx) error {
	if ct.svc.Status().Ready() {
		return router.ResponseSuccess(c, "Session already connected")
	}
	if err := ct.svc.Restart(c.UserContext()); err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccess(c, "Session initialization started")
}

func (ct *Controller) Status(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get session status", ct.svc.Snapshot())
}

// QR returns the current pairing QR code. The default output is an HTML page
// with the embedded image; output=json returns the raw data URL.
func (ct *Controller) QR(c *fiber.Ctx) error {
	qrDataURL, err := ct.svc.QR()
	if err != nil {
		return router.ResponseNotFound(c, err.Error())
	}

	output := strings.TrimSpace(c.Query("output"))
	if output == "" {
		output = "html"
	}

	if output == "html" {
		htmlContent := `
		<html>
			<head>
				<title>Synapse WhatsApp Pairing</title>
				<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
			</head>
			<body>
				<img src="` + qrDataURL + `" />
				<p>
					<b>QR Code Scan</b>
					<br/>
					Scan with the WhatsApp mobile app to pair
				</p>
			</body>
		</html>
		`
		return router.ResponseSuccessWithHTML(c, htmlContent)
	}

	return router.ResponseSuccessWithData(c, "Success get QR code", types.ResponseQR{QRCode: qrDataURL})
}

// PairPhone requests a pairing code for the given phone number.
func (ct *Controller) PairPhone(c *fiber.Ctx) error {
	var req types.RequestPairPhone
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	phone := strings.TrimSpace(req.Phone)
	if err := validation.ValidatePhone(phone); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	pairCode, err := ct.svc.PairPhone(c.UserContext(), phone)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccessWithData(c, "Success generate pairing code", types.ResponsePairPhone{PairCode: pairCode})
}

func (ct *Controller) Restart(c *fiber.Ctx) error {
	if err := ct.svc.Restart(c.UserContext()); err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccess(c, "Session restart started")
}

// ClearAuth wipes credentials, cached chats and snapshot files. Monitored
// keywords are preserved.
func (ct *Controller) ClearAuth(c *fiber.Ctx) error {
	if err := ct.svc.ClearAuth(c.UserContext()); err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccess(c, "Authentication cleared")
}
