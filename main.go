package main

import (
	"context"
	"log"

	"github.com/CodyKolby/copywritely-ai-sub001/billing"
	"github.com/CodyKolby/copywritely-ai-sub001/config"
	"github.com/CodyKolby/copywritely-ai-sub001/db"
	_ "github.com/CodyKolby/copywritely-ai-sub001/docs"
	"github.com/CodyKolby/copywritely-ai-sub001/entitlement"
	"github.com/CodyKolby/copywritely-ai-sub001/handlers/premium"
	stripehandlers "github.com/CodyKolby/copywritely-ai-sub001/handlers/stripe"
	"github.com/CodyKolby/copywritely-ai-sub001/routes"
	"github.com/CodyKolby/copywritely-ai-sub001/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// @title Copywritely Premium API
// @version 1.0
// @description Premium entitlement reconciliation API
// @host localhost:8080
// @BasePath /
// @SecurityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter the JWT with the Bearer prefix: Bearer <JWT>
func main() {

	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Could not connect to the database: ", err)
	}
	if err := db.Migrate(database); err != nil {
		log.Fatal("Could not migrate the database: ", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		utils.LogError(err, "Redis unreachable, the durable premium cache is degraded to the session scope")
	}

	billingClient := billing.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	profiles := entitlement.NewProfileStore(database)
	payments := entitlement.NewPaymentLogStore(database)
	unprocessed := entitlement.NewUnprocessedStore(database)
	cache := entitlement.NewStatusCache(rdb)
	oracle := entitlement.NewOracle(billingClient, profiles, cfg.PortalReturnURL)
	resolver := entitlement.NewResolver(profiles, payments, oracle, cache, cfg.ResolveStepTimeout, cfg.FallbackPremiumWindow)
	flow := entitlement.NewVerificationFlow(billingClient, profiles, payments, cache, cfg.FallbackPremiumWindow)

	premiumHandler := premium.NewHandler(resolver, flow, oracle, billingClient)
	webhookHandler := stripehandlers.NewWebhookHandler(billingClient, profiles, payments, unprocessed, cfg.FallbackPremiumWindow)

	r := routes.SetupRouter(premiumHandler, webhookHandler, cfg.JWTSecret)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Error starting the server: ", err)
	}
}
