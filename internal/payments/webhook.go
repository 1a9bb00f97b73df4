package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/rides"
)

const maxWebhookBody = 65536

// RideMarker is the slice of the ride service the webhook needs.
type RideMarker interface {
	MarkPaidByRef(ctx context.Context, ref string) (*models.Ride, error)
}

// WebhookHandler verifies Stripe event signatures and flips the paid flag
// when a held PaymentIntent succeeds. The flag change is tolerated at any
// point of the ride lifecycle.
type WebhookHandler struct {
	secret string
	rides  RideMarker
	logger *slog.Logger
}

func NewWebhookHandler(secret string, marker RideMarker, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, rides: marker, logger: logger}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		h.logger.Warn("stripe signature verification failed", "error", err)
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}

	if event.Type == "payment_intent.succeeded" {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		if _, err := h.rides.MarkPaidByRef(r.Context(), pi.ID); err != nil {
			if errors.Is(err, rides.ErrNotFound) {
				// intent for a ride we do not track; acknowledge anyway
				h.logger.Warn("payment for unknown ride", "payment_ref", pi.ID)
			} else {
				http.Error(w, "store error", http.StatusInternalServerError)
				return
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}
