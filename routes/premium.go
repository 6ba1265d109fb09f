package routes

import (
	"github.com/CodyKolby/copywritely-ai-sub001/handlers/premium"
	"github.com/CodyKolby/copywritely-ai-sub001/middleware"

	"github.com/gin-gonic/gin"
)

func PremiumRoutes(r *gin.Engine, h *premium.Handler, jwtSecret string) {
	premiumRoutes := r.Group("/premium")
	premiumRoutes.Use(middleware.JWTAuth(jwtSecret))
	{
		premiumRoutes.GET("/status", h.CheckPremiumStatus)
		premiumRoutes.POST("/verify", h.VerifyPaymentSession)
		premiumRoutes.GET("/session/:sessionId", h.GetSessionDetails)
		premiumRoutes.POST("/portal", h.OpenCustomerPortal)
	}
}
