package internal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/auth"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/router"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/whatsapp"

	ctlChats "github.com/synapse-pkm/synapse-whatsapp/internal/chats"
	ctlIndex "github.com/synapse-pkm/synapse-whatsapp/internal/index"
	ctlKeywords "github.com/synapse-pkm/synapse-whatsapp/internal/keywords"
	ctlMessages "github.com/synapse-pkm/synapse-whatsapp/internal/messages"
	"github.com/synapse-pkm/synapse-whatsapp/internal/notify"
	ctlSession "github.com/synapse-pkm/synapse-whatsapp/internal/session"
	ctlToken "github.com/synapse-pkm/synapse-whatsapp/internal/token"
	ctlWebhooks "github.com/synapse-pkm/synapse-whatsapp/internal/webhooks"
)

// Routes wires the control API. Lifecycle and messaging endpoints require a
// bearer token; token creation requires the admin secret.
func Routes(app *fiber.App, svc *whatsapp.Service, engine *notify.Engine) {
	session := ctlSession.NewController(svc)
	chats := ctlChats.NewController(svc)
	keywords := ctlKeywords.NewController(svc)
	messages := ctlMessages.NewController(svc)
	webhooks := ctlWebhooks.NewController(engine)

	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	adminMiddleware := auth.AdminAuth()
	tokenMiddleware := auth.TokenAuth()

	app.Post(router.BaseURL+"/admin/tokens", adminMiddleware, ctlToken.Create)

	app.Post(router.BaseURL+"/session/initialize", tokenMiddleware, session.Initialize)
	app.Get(router.BaseURL+"/session/status", tokenMiddleware, session.Status)
	app.Get(router.BaseURL+"/session/qr", tokenMiddleware, session.QR)
	app.Post(router.BaseURL+"/session/pair-phone", tokenMiddleware, session.PairPhone)
	app.Post(router.BaseURL+"/session/restart", tokenMiddleware, session.Restart)
	app.Post(router.BaseURL+"/session/clear-auth", tokenMiddleware, session.ClearAuth)

	app.Get(router.BaseURL+"/chats/groups", tokenMiddleware, chats.Groups)
	app.Get(router.BaseURL+"/chats/private", tokenMiddleware, chats.PrivateChats)
	app.Post(router.BaseURL+"/chats/refresh", tokenMiddleware, chats.Refresh)
	app.Get(router.BaseURL+"/chats/:chat_id/messages", tokenMiddleware, chats.Messages)
	app.Get(router.BaseURL+"/messages/recent", tokenMiddleware, chats.Recent)

	app.Get(router.BaseURL+"/keywords", tokenMiddleware, keywords.List)
	app.Post(router.BaseURL+"/keywords", tokenMiddleware, keywords.Add)
	app.Delete(router.BaseURL+"/keywords/:keyword", tokenMiddleware, keywords.Remove)

	app.Post(router.BaseURL+"/messages/text", tokenMiddleware, messages.SendText)
	app.Post(router.BaseURL+"/messages/image", tokenMiddleware, messages.SendImage)

	app.Post(router.BaseURL+"/webhooks", tokenMiddleware, webhooks.Register)
	app.Get(router.BaseURL+"/webhooks", tokenMiddleware, webhooks.List)
	app.Delete(router.BaseURL+"/webhooks/:id", tokenMiddleware, webhooks.Delete)
}
