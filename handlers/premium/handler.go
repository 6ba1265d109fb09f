package premium

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/billing"
	"github.com/CodyKolby/copywritely-ai-sub001/entitlement"
	"github.com/CodyKolby/copywritely-ai-sub001/utils"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
)

type resolver interface {
	Resolve(ctx context.Context, userID string) entitlement.Resolution
}

type verificationFlow interface {
	Run(ctx context.Context, sessionID, userID string) entitlement.VerificationResult
}

type portalProvider interface {
	PortalURL(ctx context.Context, userID string) (string, error)
}

type sessionFetcher interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

// Handler exposes the premium entitlement surface consumed by the client.
// Every status question goes through the resolver; no endpoint re-implements
// the precedence order.
type Handler struct {
	resolver resolver
	flow     verificationFlow
	portal   portalProvider
	sessions sessionFetcher
}

func NewHandler(r resolver, f verificationFlow, p portalProvider, s sessionFetcher) *Handler {
	return &Handler{resolver: r, flow: f, portal: p, sessions: s}
}

// CheckPremiumStatus resolves the current premium entitlement of the caller
// @Summary Check premium status
// @Description Resolve whether the connected user currently holds a valid paid entitlement
// @Tags premium
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} entitlement.Resolution
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Router /premium/status [get]
func (h *Handler) CheckPremiumStatus(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated in CheckPremiumStatus")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	resolution := h.resolver.Resolve(c.Request.Context(), userID.(string))
	c.JSON(http.StatusOK, resolution)
}

type verifyRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// VerifyPaymentSession drives the post-checkout verification flow
// @Summary Verify a payment session
// @Description Verify a checkout session after the payment redirect and confirm the entitlement
// @Tags premium
// @Accept json
// @Produce json
// @Param request body verifyRequest true "Checkout session to verify"
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "success, state, profile"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: No proof of payment found"
// @Failure 502 {object} map[string]string "error: Billing provider unavailable"
// @Router /premium/verify [post]
func (h *Handler) VerifyPaymentSession(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated in VerifyPaymentSession")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req verifyRequest
	if !utils.ValidateRequestBody(c, &req) {
		return
	}

	result := h.flow.Run(c.Request.Context(), req.SessionID, userID.(string))
	switch result.State {
	case entitlement.StateSuccess:
		utils.LogSuccessWithUser(userID, "Payment session verified")
		c.JSON(http.StatusOK, gin.H{"success": true, "state": result.State, "profile": result.Profile})
	case entitlement.StateDegradedSuccess:
		// Payment is proven even though the record has not confirmed yet;
		// the user is told "pending", never "failed".
		utils.LogSuccessWithUser(userID, "Payment verified, entitlement confirmation pending")
		c.JSON(http.StatusOK, gin.H{"success": true, "state": result.State, "message": "Payment received, your access is being activated"})
	default:
		utils.LogErrorWithUser(userID, result.Err, "Payment session verification failed")
		if errors.Is(result.Err, entitlement.ErrAuthNotReady) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not match an authenticated session, please retry"})
			return
		}
		if errors.Is(result.Err, entitlement.ErrProviderUnavailable) {
			// Nothing proves or disproves the payment yet; this is not the
			// no-proof case.
			c.JSON(http.StatusBadGateway, gin.H{"error": "Billing provider unavailable, please retry"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "No proof of payment found for this session"})
	}
}

// GetSessionDetails returns the billing details of a checkout session
// @Summary Checkout session details
// @Description Return subscription id, status, expiry, customer id and email for a checkout session
// @Tags premium
// @Accept json
// @Produce json
// @Param sessionId path string true "ID of the checkout session"
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: Session not found"
// @Failure 502 {object} map[string]string "error: Billing provider unavailable"
// @Router /premium/session/{sessionId} [get]
func (h *Handler) GetSessionDetails(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated in GetSessionDetails")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID := c.Param("sessionId")
	session, err := h.sessions.GetCheckoutSession(c.Request.Context(), sessionID)
	if err != nil {
		if billing.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		utils.LogErrorWithUser(userID, err, "Could not fetch the checkout session in GetSessionDetails")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Billing provider unavailable"})
		return
	}

	details := gin.H{
		"sessionId": session.ID,
		"status":    session.PaymentStatus,
	}
	if session.Subscription != nil {
		details["subscriptionId"] = session.Subscription.ID
		if end, ok := billing.PeriodEnd(session.Subscription); ok {
			details["expiry"] = end.Format(time.RFC3339)
		}
	}
	if session.Customer != nil {
		details["customerId"] = session.Customer.ID
	}
	if session.CustomerDetails != nil {
		details["email"] = session.CustomerDetails.Email
	}

	c.JSON(http.StatusOK, details)
}

// OpenCustomerPortal creates a provider-hosted subscription management session
// @Summary Open the customer portal
// @Description Create a customer-portal session and return its redirect URL
// @Tags premium
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "url: portal redirect URL"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: No billing customer for this user"
// @Failure 502 {object} map[string]string "error: Billing provider unavailable"
// @Router /premium/portal [post]
func (h *Handler) OpenCustomerPortal(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.LogError(nil, "User not authenticated in OpenCustomerPortal")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	url, err := h.portal.PortalURL(c.Request.Context(), userID.(string))
	if err != nil {
		if errors.Is(err, entitlement.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No billing customer for this user"})
			return
		}
		utils.LogErrorWithUser(userID, err, "Could not create a customer portal session")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Billing provider unavailable"})
		return
	}

	utils.LogSuccessWithUser(userID, "Customer portal session created")
	c.JSON(http.StatusOK, gin.H{"url": url})
}
