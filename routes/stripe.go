package routes

import (
	stripehandlers "github.com/CodyKolby/copywritely-ai-sub001/handlers/stripe"

	"github.com/gin-gonic/gin"
)

func StripeRoutes(r *gin.Engine, h *stripehandlers.WebhookHandler) {
	r.POST("/stripe/webhook", h.HandleWebhook)
}
