package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/makerspace/makeradmin-sub000/internal/logger"
	"github.com/makerspace/makeradmin-sub000/internal/member"
	"github.com/makerspace/makeradmin-sub000/internal/metrics"
	"github.com/makerspace/makeradmin-sub000/internal/span"
	"github.com/makerspace/makeradmin-sub000/internal/transaction"
)

// TransactionFailer is the slice of the webshop pipeline the processor needs:
// marking a one-off payment's transaction as failed.
type TransactionFailer interface {
	Fail(ctx context.Context, transactionID int) error
}

// Processor turns decoded billing-processor events into ledger extensions and
// subscription reference updates. Every handler tolerates redelivery and
// out-of-order arrival; reconciliation problems are logged, never fatal.
type Processor struct {
	events       EventRepository
	members      member.Repository
	transactions TransactionFailer
}

func NewProcessor(events EventRepository, members member.Repository, transactions TransactionFailer) *Processor {
	return &Processor{
		events:       events,
		members:      members,
		transactions: transactions,
	}
}

func (p *Processor) Process(ctx context.Context, event *Event) error {
	alreadyProcessed, err := p.events.Record(ctx, event)
	if err != nil {
		return err
	}
	if alreadyProcessed {
		metrics.RecordWebhookEvent(event.Type, "duplicate")
		logger.Infof("Skipping already processed event %s (%s)", event.ID, event.Type)
		return nil
	}

	if err := p.dispatch(ctx, event); err != nil {
		metrics.RecordWebhookEvent(event.Type, "error")
		if markErr := p.events.MarkFailed(ctx, event.Provider, event.ID, err.Error()); markErr != nil {
			logger.Errorf("Failed to record processing error for event %s: %v", event.ID, markErr)
		}
		return err
	}

	if err := p.events.MarkProcessed(ctx, event.Provider, event.ID); err != nil {
		return err
	}
	metrics.RecordWebhookEvent(event.Type, "processed")
	return nil
}

func (p *Processor) dispatch(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventInvoicePaid:
		return p.handleInvoicePaid(ctx, event)
	case EventSubscriptionCreated:
		return p.handleSubscriptionCreated(ctx, event)
	case EventSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, event)
	case EventPaymentFailed:
		return p.handlePaymentFailed(ctx, event)
	case EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, event)
	case EventSetupIntentSucceeded:
		return p.handleSetupIntentSucceeded(ctx, event)
	default:
		logger.Debugf("Ignoring event %s of type %s", event.ID, event.Type)
		return nil
	}
}

// handleInvoicePaid extends the span ledger directly for each billed line.
// Renewals have no cart, so no transaction actions are involved; the
// creation reason carries the invoice id for auditability. All lines and the
// processed-at marker commit in one transaction, so a failure partway through
// leaves nothing behind and a redelivery applies every line exactly once.
func (p *Processor) handleInvoicePaid(ctx context.Context, event *Event) error {
	var invoice invoicePayload
	if err := json.Unmarshal(event.Raw, &invoice); err != nil {
		return fmt.Errorf("cannot decode invoice payload: %w", err)
	}

	var extensions []LedgerExtension
	for i, line := range invoice.Lines.Data {
		memberID, accessType, ok := lineSubject(line.Metadata)
		if !ok {
			logger.Error("Invoice line missing member metadata, skipping",
				"invoice", invoice.ID, "line", i)
			continue
		}

		days := int(math.Round(float64(line.Period.End-line.Period.Start) / 86400))
		if days <= 0 {
			logger.Error("Invoice line has non-positive period, skipping",
				"invoice", invoice.ID, "line", i)
			continue
		}

		extensions = append(extensions, LedgerExtension{
			MemberID:   memberID,
			AccessType: accessType,
			Days:       days,
			Start:      time.Unix(line.Period.Start, 0).UTC(),
			Reason:     fmt.Sprintf("billing invoice %s line %d", invoice.ID, i),
		})
	}
	if len(extensions) == 0 {
		return nil
	}

	ends, err := p.events.ApplyExtensions(ctx, event.Provider, event.ID, extensions)
	if err != nil {
		return fmt.Errorf("failed to extend ledger for invoice %s: %w", invoice.ID, err)
	}
	for i, ext := range extensions {
		metrics.RecordSpanExtended(string(ext.AccessType), "subscription")
		logger.Infof("Renewal: member %d %s extended until %s", ext.MemberID, ext.AccessType, ends[i].Format("2006-01-02"))
	}
	return nil
}

// handleSubscriptionCreated swaps a scheduled reference for the live one once
// the schedule starts producing an actual subscription.
func (p *Processor) handleSubscriptionCreated(ctx context.Context, event *Event) error {
	var sub subscriptionPayload
	if err := json.Unmarshal(event.Raw, &sub); err != nil {
		return fmt.Errorf("cannot decode subscription payload: %w", err)
	}

	memberID, accessType, ok := lineSubject(sub.Metadata)
	if !ok {
		logger.Error("Subscription created without member metadata, ignoring", "subscription", sub.ID)
		return nil
	}

	return p.members.UpsertSubscriptionRef(ctx, &member.SubscriptionRef{
		MemberID:   memberID,
		AccessType: accessType,
		State:      member.StateLive,
		ExternalID: sub.ID,
		Paused:     false,
	})
}

// handleSubscriptionDeleted clears the member's reference, but only when it
// still points at the deleted arrangement. A stale delete for an arrangement
// that has since been replaced must not clobber the newer reference.
func (p *Processor) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	var sub subscriptionPayload
	if err := json.Unmarshal(event.Raw, &sub); err != nil {
		return fmt.Errorf("cannot decode subscription payload: %w", err)
	}

	memberID, accessType, ok := lineSubject(sub.Metadata)
	if !ok {
		logger.Error("Subscription deleted without member metadata, ignoring", "subscription", sub.ID)
		return nil
	}

	candidates := []string{sub.ID}
	if sub.Schedule != "" {
		candidates = append(candidates, sub.Schedule)
	}
	removed, err := p.members.ClearSubscriptionRefIfMatches(ctx, memberID, accessType, candidates...)
	if err != nil {
		return err
	}
	if !removed {
		logger.Infof("Stale subscription delete for member %d (%s), ignoring", memberID, sub.ID)
		return nil
	}

	metrics.RecordSubscriptionCancelled(string(accessType))
	logger.Infof("Subscription %s for member %d removed", sub.ID, memberID)
	return nil
}

func (p *Processor) handlePaymentFailed(ctx context.Context, event *Event) error {
	var intent paymentIntentPayload
	if err := json.Unmarshal(event.Raw, &intent); err != nil {
		return fmt.Errorf("cannot decode payment intent payload: %w", err)
	}

	transactionID, err := strconv.Atoi(intent.Metadata["transaction_id"])
	if err != nil {
		logger.Infof("Payment failure %s without transaction metadata, ignoring", intent.ID)
		return nil
	}

	if err := p.transactions.Fail(ctx, transactionID); err != nil {
		if errors.Is(err, transaction.ErrNotPending) || errors.Is(err, transaction.ErrTransactionNotFound) {
			// Duplicate or out-of-order delivery; the transaction already
			// reached a terminal state.
			logger.Infof("Payment failure for transaction %d ignored: %v", transactionID, err)
			return nil
		}
		return err
	}
	return nil
}

func (p *Processor) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	var session checkoutSessionPayload
	if err := json.Unmarshal(event.Raw, &session); err != nil {
		return fmt.Errorf("cannot decode checkout session payload: %w", err)
	}
	if session.Customer == "" || session.SetupIntent == "" {
		return nil
	}
	return p.updatePaymentRef(ctx, session.Customer, session.SetupIntent)
}

func (p *Processor) handleSetupIntentSucceeded(ctx context.Context, event *Event) error {
	var intent setupIntentPayload
	if err := json.Unmarshal(event.Raw, &intent); err != nil {
		return fmt.Errorf("cannot decode setup intent payload: %w", err)
	}
	if intent.Customer == "" || intent.PaymentMethod == "" {
		return nil
	}
	return p.updatePaymentRef(ctx, intent.Customer, intent.PaymentMethod)
}

func (p *Processor) updatePaymentRef(ctx context.Context, customerRef, paymentRef string) error {
	m, err := p.members.FindByBillingCustomerRef(ctx, customerRef)
	if err != nil {
		if errors.Is(err, member.ErrMemberNotFound) {
			logger.Infof("Payment setup for unknown customer %s, ignoring", customerRef)
			return nil
		}
		return err
	}
	return p.members.SetBillingPaymentRef(ctx, m.ID, paymentRef)
}

func lineSubject(metadata map[string]string) (int, span.AccessType, bool) {
	memberID, err := strconv.Atoi(metadata["member_id"])
	if err != nil {
		return 0, "", false
	}
	accessType := span.AccessType(metadata["subscription_type"])
	if !accessType.Valid() {
		return 0, "", false
	}
	return memberID, accessType, true
}
