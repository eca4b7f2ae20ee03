package app

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Pro licenses do not expire in practice; the token carries a far-future
// expiry so verification stays uniform.
const licenseLifetime = 100 * 365 * 24 * time.Hour

type CheckoutRequest struct {
	Email      string  `json:"email"`
	SuccessUrl *string `json:"success_url"`
	CancelUrl  *string `json:"cancel_url"`
}

type CheckoutResponse struct {
	CheckoutUrl string `json:"checkout_url"`
	Mode        string `json:"mode"`
}

type LicenseResponse struct {
	Token            string `json:"token"`
	Pro              bool   `json:"pro"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

type VerifyLicenseResponse struct {
	Valid bool   `json:"valid"`
	Pro   bool   `json:"pro"`
	Email string `json:"email"`
}

func (s *ServerState) handleCreateCheckout(c echo.Context) error {
	var req CheckoutRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return badRequestError("invalid request body: %v", err)
	}
	if req.Email == "" {
		return badRequestError("email is required")
	}

	successUrl := s.config.BaseUrl + "/app?checkout=success"
	if req.SuccessUrl != nil {
		successUrl = *req.SuccessUrl
	}
	cancelUrl := s.config.BaseUrl + "/app?checkout=cancel"
	if req.CancelUrl != nil {
		cancelUrl = *req.CancelUrl
	}

	// Without a Stripe key the checkout runs in mock mode so the frontend
	// flow stays testable locally.
	if s.config.StripeSecretKey == "" {
		return c.JSON(http.StatusOK, CheckoutResponse{
			CheckoutUrl: s.config.BaseUrl + "/app?checkout=mock&email=" + req.Email,
			Mode:        "mock",
		})
	}
	if s.config.StripePriceId == "" {
		return badRequestError("STRIPE_PRICE_ID is not configured")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(successUrl),
		CancelURL:     stripe.String(cancelUrl),
		CustomerEmail: stripe.String(req.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(s.config.StripePriceId),
			Quantity: stripe.Int64(1),
		}},
	}
	checkoutSession, err := session.New(params)
	if err != nil {
		return internalError("failed to create Stripe checkout session: %v", err)
	}

	return c.JSON(http.StatusOK, CheckoutResponse{
		CheckoutUrl: checkoutSession.URL,
		Mode:        "live",
	})
}

func (s *ServerState) handleStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequestError("failed to read webhook payload: %v", err)
	}

	var eventType string
	var object map[string]any

	if s.config.StripeWebhookSecret != "" {
		signature := c.Request().Header.Get("Stripe-Signature")
		if signature == "" {
			return unauthorizedError("missing Stripe signature header")
		}
		event, err := webhook.ConstructEvent(payload, signature, s.config.StripeWebhookSecret)
		if err != nil {
			return unauthorizedError("invalid Stripe signature")
		}
		eventType = string(event.Type)
		if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
			return badRequestError("invalid webhook object: %v", err)
		}
	} else {
		var body struct {
			Type string `json:"type"`
			Data struct {
				Object map[string]any `json:"object"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return badRequestError("invalid webhook payload: %v", err)
		}
		eventType = body.Type
		object = body.Data.Object
	}

	if eventType != "checkout.session.completed" {
		return badRequestError("unhandled webhook event type: %s", eventType)
	}

	email, ok := customerEmail(object)
	if !ok {
		return badRequestError("Stripe webhook missing customer email")
	}

	license, err := s.issueLicenseForEmail(email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, license)
}

func (s *ServerState) handleCompleteCheckout(c echo.Context) error {
	var req struct {
		SessionId string `json:"session_id"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return badRequestError("invalid request body: %v", err)
	}
	if req.SessionId == "" {
		return badRequestError("session_id is required")
	}
	if s.config.StripeSecretKey == "" {
		return badRequestError("STRIPE_SECRET_KEY is not configured")
	}

	checkoutSession, err := session.Get(req.SessionId, nil)
	if err != nil {
		return badRequestError("Stripe checkout session lookup failed: %v", err)
	}
	if checkoutSession.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		checkoutSession.Status != stripe.CheckoutSessionStatusComplete {
		return badRequestError("checkout session is not paid yet")
	}

	email := checkoutSession.CustomerEmail
	if email == "" && checkoutSession.CustomerDetails != nil {
		email = checkoutSession.CustomerDetails.Email
	}
	if email == "" {
		return badRequestError("Stripe session missing customer email")
	}

	license, err := s.issueLicenseForEmail(email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, license)
}

func (s *ServerState) handleVerifyLicense(c echo.Context) error {
	token, ok := bearerToken(c)
	if !ok {
		return unauthorizedError("missing Bearer token")
	}

	claims, err := VerifyLicenseToken(token, s.config.JwtSecret)
	if err != nil {
		return unauthorizedError("invalid or expired license token")
	}

	isPro := claims.Pro
	email := claims.Email
	if cached, ok := s.state.LookupLicense(token); ok {
		isPro = cached.IsPro
		email = cached.Email
	}

	return c.JSON(http.StatusOK, VerifyLicenseResponse{
		Valid: true,
		Pro:   isPro,
		Email: email,
	})
}

// customerEmail projects the email out of a schemaless checkout-session
// object: top-level customer_email, then customer_details.email.
func customerEmail(object map[string]any) (string, bool) {
	if email, ok := object["customer_email"].(string); ok && email != "" {
		return email, true
	}
	if details, ok := object["customer_details"].(map[string]any); ok {
		if email, ok := details["email"].(string); ok && email != "" {
			return email, true
		}
	}
	return "", false
}

func (s *ServerState) issueLicenseForEmail(email string) (*LicenseResponse, error) {
	token, err := CreateLicenseToken(uuid.NewString(), email, true, licenseLifetime, s.config.JwtSecret)
	if err != nil {
		return nil, internalError("failed to sign license token: %v", err)
	}

	s.state.StoreLicense(CachedLicense{
		Token:     token,
		Email:     email,
		IsPro:     true,
		ExpiresAt: time.Now().Add(licenseLifetime),
	})

	return &LicenseResponse{
		Token:            token,
		Pro:              true,
		ExpiresInSeconds: int64(licenseLifetime.Seconds()),
	}, nil
}
