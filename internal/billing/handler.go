package billing

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/makerspace/makeradmin-sub000/internal/api"
	"github.com/makerspace/makeradmin-sub000/internal/logger"
	"github.com/makerspace/makeradmin-sub000/internal/metrics"
)

const maxWebhookBody = 1 << 16

// NewWebhookHandler verifies the processor's signature and hands the event to
// the Processor. A bad signature is rejected with no state change; a
// processing failure returns 500 so the sender retries on its own schedule.
func NewWebhookHandler(signingSecret string, processor *Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "cannot read body"})
			return
		}

		event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), signingSecret)
		if err != nil {
			metrics.RecordWebhookEvent("unknown", "bad_signature")
			logger.Errorf("Webhook signature verification failed: %v", err)
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid signature"})
			return
		}

		err = processor.Process(c.Request.Context(), &Event{
			Provider: "stripe",
			ID:       event.ID,
			Type:     string(event.Type),
			Raw:      event.Data.Raw,
		})
		if err != nil {
			logger.Errorf("Failed to process event %s (%s): %v", event.ID, event.Type, err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "event processing failed"})
			return
		}

		c.JSON(http.StatusOK, api.MessageResponse{Message: "ok"})
	}
}
