package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/billing"
	"github.com/CodyKolby/copywritely-ai-sub001/entitlement"
	"github.com/CodyKolby/copywritely-ai-sub001/models"
	"github.com/CodyKolby/copywritely-ai-sub001/utils"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
)

type profileStore interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Profile, error)
	ApplyUpdate(ctx context.Context, userID string, u entitlement.Update) (*models.Profile, error)
}

type paymentStore interface {
	RecordOnce(ctx context.Context, entry models.PaymentLog) (bool, error)
	ByCustomerID(ctx context.Context, customerID string) (*models.PaymentLog, error)
}

type unprocessedStore interface {
	Stage(ctx context.Context, sessionID string, rawEvent []byte) error
	MarkProcessed(ctx context.Context, sessionID string) error
}

type billingClient interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// WebhookHandler ingests billing-provider events and updates the entitlement
// record and the payment log. Handling is stateless per request; concurrent
// delivery for the same subscription is safe through the unique session id
// on payment logs and the forward-only expiry merge.
type WebhookHandler struct {
	billing        billingClient
	profiles       profileStore
	payments       paymentStore
	unprocessed    unprocessedStore
	fallbackWindow time.Duration
	now            func() time.Time
}

func NewWebhookHandler(billingClient billingClient, profiles profileStore, payments paymentStore, unprocessed unprocessedStore, fallbackWindow time.Duration) *WebhookHandler {
	return &WebhookHandler{
		billing:        billingClient,
		profiles:       profiles,
		payments:       payments,
		unprocessed:    unprocessed,
		fallbackWindow: fallbackWindow,
		now:            time.Now,
	}
}

// HandleWebhook receives a signed billing event
// @Summary Stripe webhook endpoint
// @Description Consume signed billing events and reconcile the entitlement record
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "message: event handled"
// @Failure 400 {object} map[string]string "error: invalid payload or signature"
// @Failure 500 {object} map[string]string "error: webhook secret not configured"
// @Router /stripe/webhook [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not read the request body"})
		return
	}

	// Unverifiable events are rejected, never trusted.
	event, err := h.billing.ConstructWebhookEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrWebhookSecretMissing) {
			utils.LogError(err, "Webhook received without a configured signing secret")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook secret not configured"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stripe signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(c, event)
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionUpdated(c, event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(c, event)
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Event ignored"})
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(c *gin.Context, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse the checkout session"})
		return
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		c.JSON(http.StatusOK, gin.H{"message": "Checkout session not paid, ignored"})
		return
	}

	profile := h.resolveCheckoutUser(c, &session)
	if profile == nil {
		// Staged for the out-of-band retry job, never discarded. The event
		// is acknowledged so the provider stops redelivering a payload we
		// cannot match any better from the webhook alone.
		if err := h.unprocessed.Stage(c.Request.Context(), session.ID, event.Data.Raw); err != nil {
			utils.LogError(err, "Could not stage an unmatched checkout event")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not persist the unmatched event"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "No matching user, event staged"})
		return
	}

	subscriptionID, expiry := h.checkoutEntitlement(c.Request.Context(), &session)

	entry := models.PaymentLog{
		UserID:         profile.ID,
		SessionID:      session.ID,
		SubscriptionID: subscriptionID,
		PaidAt:         h.now(),
	}
	if session.Customer != nil {
		entry.CustomerID = session.Customer.ID
	}
	if session.CustomerDetails != nil {
		entry.CustomerEmail = session.CustomerDetails.Email
	}

	created, err := h.payments.RecordOnce(c.Request.Context(), entry)
	if err != nil {
		utils.LogErrorWithUser(profile.ID, err, "Could not record the payment log entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not record the payment"})
		return
	}

	// Redelivery stops here: the first delivery already wrote the record, and
	// recomputing the expiry now could push it past what a single delivery
	// would have stored.
	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "Checkout already recorded"})
		return
	}

	update := entitlement.Update{
		IsPremium:      boolPtr(true),
		Status:         statusPtr(models.SubscriptionActive),
		SubscriptionID: &subscriptionID,
		Expiry:         &expiry,
	}
	if session.Customer != nil {
		update.CustomerID = &session.Customer.ID
	}
	if _, err := h.profiles.ApplyUpdate(c.Request.Context(), profile.ID, update); err != nil {
		utils.LogErrorWithUser(profile.ID, err, "Could not update the entitlement record after checkout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update the entitlement record"})
		return
	}

	// A previously staged copy of this session is now resolved.
	if err := h.unprocessed.MarkProcessed(c.Request.Context(), session.ID); err != nil {
		utils.LogError(err, "Could not mark a staged event as processed")
	}

	utils.LogSuccessWithUser(profile.ID, "Checkout completed, entitlement granted")
	c.JSON(http.StatusOK, gin.H{"message": "Checkout recorded"})
}

// resolveCheckoutUser finds the paying user: embedded user reference first,
// then customer email, else nil.
func (h *WebhookHandler) resolveCheckoutUser(c *gin.Context, session *stripe.CheckoutSession) *models.Profile {
	if session.ClientReferenceID != "" {
		profile, err := h.profiles.Get(c.Request.Context(), session.ClientReferenceID)
		if err == nil {
			return profile
		}
		if !errors.Is(err, entitlement.ErrNotFound) {
			utils.LogError(err, "Profile lookup by client reference failed")
		}
	}

	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		profile, err := h.profiles.GetByEmail(c.Request.Context(), session.CustomerDetails.Email)
		if err == nil {
			return profile
		}
		if !errors.Is(err, entitlement.ErrNotFound) {
			utils.LogError(err, "Profile lookup by customer email failed")
		}
	}

	return nil
}

// checkoutEntitlement computes the subscription id and expiry for a paid
// session: the provider period end when reachable, the fallback window
// otherwise.
func (h *WebhookHandler) checkoutEntitlement(ctx context.Context, session *stripe.CheckoutSession) (string, time.Time) {
	expiry := h.now().Add(h.fallbackWindow)
	if session.Subscription == nil {
		return "", expiry
	}

	sub, err := h.billing.GetSubscription(ctx, session.Subscription.ID)
	if err != nil {
		utils.LogError(err, "Could not fetch the subscription for a completed checkout, using the fallback window")
		return session.Subscription.ID, expiry
	}
	if end, ok := billing.PeriodEnd(sub); ok {
		return session.Subscription.ID, end
	}
	return session.Subscription.ID, expiry
}

func (h *WebhookHandler) handleSubscriptionUpdated(c *gin.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse the subscription"})
		return
	}

	profile := h.resolveSubscriptionUser(c, &sub)
	if profile == nil {
		if err := h.unprocessed.Stage(c.Request.Context(), event.ID, event.Data.Raw); err != nil {
			utils.LogError(err, "Could not stage an unmatched subscription event")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not persist the unmatched event"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "No matching user, event staged"})
		return
	}

	status := billing.MapStatus(sub.Status)
	update := entitlement.Update{
		Status:         statusPtr(status),
		SubscriptionID: &sub.ID,
	}

	if status == models.SubscriptionCanceled && sub.CancelAtPeriodEnd {
		// Deferred cancellation: the paid period keeps running, so premium is
		// left standing and the stored expiry does the gating.
		if end, ok := billing.PeriodEnd(&sub); ok {
			update.Expiry = &end
		}
	} else {
		update.IsPremium = boolPtr(status.Premium())
		if status == models.SubscriptionCanceled {
			// Immediate cancellation: the one case allowed to pull expiry back.
			update.AuthoritativeCancel = true
		} else if end, ok := billing.PeriodEnd(&sub); ok {
			// Adopt the provider period end; the merge keeps expiry monotonic
			// when this event carries older data.
			update.Expiry = &end
		}
	}

	if _, err := h.profiles.ApplyUpdate(c.Request.Context(), profile.ID, update); err != nil {
		utils.LogErrorWithUser(profile.ID, err, "Could not apply a subscription update")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update the entitlement record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription update applied"})
}

func (h *WebhookHandler) handleSubscriptionDeleted(c *gin.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse the subscription"})
		return
	}

	profile := h.resolveSubscriptionUser(c, &sub)
	if profile == nil {
		if err := h.unprocessed.Stage(c.Request.Context(), event.ID, event.Data.Raw); err != nil {
			utils.LogError(err, "Could not stage an unmatched subscription deletion")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not persist the unmatched event"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "No matching user, event staged"})
		return
	}

	update := entitlement.Update{
		Status: statusPtr(models.SubscriptionCanceled),
	}
	if sub.CancelAtPeriodEnd {
		// Cancel at period end: access runs until the recorded date, so
		// premium stays set and only flips once the expiry passes. When the
		// event carries a cancel date the merge takes the later of the two;
		// otherwise the stored period end is preserved.
		if sub.CancelAt > 0 {
			cancelAt := time.Unix(sub.CancelAt, 0).UTC()
			update.Expiry = &cancelAt
		}
	} else {
		update.IsPremium = boolPtr(false)
		update.AuthoritativeCancel = true
	}

	if _, err := h.profiles.ApplyUpdate(c.Request.Context(), profile.ID, update); err != nil {
		utils.LogErrorWithUser(profile.ID, err, "Could not apply a subscription deletion")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update the entitlement record"})
		return
	}

	utils.LogSuccessWithUser(profile.ID, "Subscription deletion applied")
	c.JSON(http.StatusOK, gin.H{"message": "Subscription deletion applied"})
}

// resolveSubscriptionUser locates the owner of a subscription event: the
// record holding the subscription id first, then the payment log by customer.
func (h *WebhookHandler) resolveSubscriptionUser(c *gin.Context, sub *stripe.Subscription) *models.Profile {
	profile, err := h.profiles.GetBySubscriptionID(c.Request.Context(), sub.ID)
	if err == nil {
		return profile
	}
	if !errors.Is(err, entitlement.ErrNotFound) {
		utils.LogError(err, "Profile lookup by subscription id failed")
	}

	if sub.Customer == nil {
		return nil
	}
	entry, err := h.payments.ByCustomerID(c.Request.Context(), sub.Customer.ID)
	if err != nil {
		if !errors.Is(err, entitlement.ErrNotFound) {
			utils.LogError(err, "Payment log lookup by customer failed")
		}
		return nil
	}
	profile, err = h.profiles.Get(c.Request.Context(), entry.UserID)
	if err != nil {
		return nil
	}
	return profile
}

func boolPtr(b bool) *bool { return &b }

func statusPtr(s models.SubscriptionStatus) *models.SubscriptionStatus { return &s }
