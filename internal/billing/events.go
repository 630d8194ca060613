package billing

import "time"

// Event is one decoded webhook delivery. Raw holds the provider's object
// payload; the processor unmarshals it per event type.
type Event struct {
	Provider string
	ID       string
	Type     string
	Raw      []byte
}

// Processor-recognized event types. Anything else is recorded and ignored.
const (
	EventInvoicePaid          = "invoice.paid"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventPaymentFailed        = "payment_intent.payment_failed"
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSetupIntentSucceeded = "setup_intent.succeeded"
)

// StoredEvent is the persisted webhook delivery, keyed by provider event id
// for idempotent processing under at-least-once delivery.
type StoredEvent struct {
	ID              int        `db:"id"`
	Provider        string     `db:"provider"`
	EventID         string     `db:"event_id"`
	EventType       string     `db:"event_type"`
	Payload         []byte     `db:"payload"`
	ProcessedAt     *time.Time `db:"processed_at"`
	ProcessingError *string    `db:"processing_error"`
	CreatedAt       time.Time  `db:"created_at"`
}

type invoicePayload struct {
	ID    string `json:"id"`
	Lines struct {
		Data []invoiceLine `json:"data"`
	} `json:"lines"`
}

type invoiceLine struct {
	Metadata map[string]string `json:"metadata"`
	Period   struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"period"`
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Schedule string            `json:"schedule"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

type paymentIntentPayload struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

type checkoutSessionPayload struct {
	Customer    string `json:"customer"`
	SetupIntent string `json:"setup_intent"`
}

type setupIntentPayload struct {
	Customer      string `json:"customer"`
	PaymentMethod string `json:"payment_method"`
}
