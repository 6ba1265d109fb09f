package routes

import (
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/handlers/premium"
	stripehandlers "github.com/CodyKolby/copywritely-ai-sub001/handlers/stripe"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func SetupRouter(premiumHandler *premium.Handler, webhookHandler *stripehandlers.WebhookHandler, jwtSecret string) *gin.Engine {

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	PremiumRoutes(r, premiumHandler, jwtSecret)
	StripeRoutes(r, webhookHandler)

	return r
}
