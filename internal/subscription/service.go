package subscription

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/makerspace/makeradmin-sub000/internal/billing"
	"github.com/makerspace/makeradmin-sub000/internal/email"
	"github.com/makerspace/makeradmin-sub000/internal/logger"
	"github.com/makerspace/makeradmin-sub000/internal/member"
	"github.com/makerspace/makeradmin-sub000/internal/metrics"
	"github.com/makerspace/makeradmin-sub000/internal/span"
)

var (
	ErrInvalidAccessType = errors.New("invalid access type")
	ErrPriceMismatch     = errors.New("expected price does not match current price")
	ErrNoSubscription    = errors.New("no subscription for this access type")
	ErrNotLive           = errors.New("subscription is not live")
	ErrNotPaused         = errors.New("subscription is not paused")
)

// ExpectedPrices lets the caller pin the prices it showed to the member.
// Nil fields skip the check.
type ExpectedPrices struct {
	NowCents       *int64
	RecurringCents *int64
}

type Service interface {
	Start(ctx context.Context, memberID int, accessType span.AccessType, earliestStart time.Time, expected ExpectedPrices) (*StartResult, error)
	Pause(ctx context.Context, memberID int, accessType span.AccessType) error
	Resume(ctx context.Context, memberID int, accessType span.AccessType, earliestStart time.Time) (*StartResult, error)
	Cancel(ctx context.Context, memberID int, accessType span.AccessType) error
	List(ctx context.Context, memberID int) ([]Status, error)
}

type service struct {
	client  billing.Client
	members member.Repository
	spans   span.Service
	email   *email.Service
	// bindingMonths holds the minimum commitment per access type, in billing
	// units. 0 or 1 means no binding phase.
	bindingMonths map[span.AccessType]int
}

func NewService(client billing.Client, members member.Repository, spans span.Service, emailSvc *email.Service, bindingMonths map[span.AccessType]int) Service {
	return &service{
		client:        client,
		members:       members,
		spans:         spans,
		email:         emailSvc,
		bindingMonths: bindingMonths,
	}
}

func (s *service) Start(ctx context.Context, memberID int, accessType span.AccessType, earliestStart time.Time, expected ExpectedPrices) (*StartResult, error) {
	if !accessType.Valid() {
		return nil, ErrInvalidAccessType
	}

	m, err := s.members.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	customerRef, err := s.ensureCustomer(ctx, m)
	if err != nil {
		return nil, err
	}

	// If the ledger already covers this access type through some future end
	// date, billing is deferred to one day before coverage runs out so that
	// there is never a gap, and the binding phase is waived.
	earliestStart = span.Date(earliestStart)
	billingStart := earliestStart
	wasCovered := false
	if end, err := s.spans.LatestEnd(ctx, memberID, accessType); err != nil {
		return nil, err
	} else if end != nil && !end.Before(earliestStart) {
		wasCovered = true
		if deferred := end.AddDate(0, 0, -1); deferred.After(billingStart) {
			billingStart = deferred
		}
	}

	recurring, err := s.client.GetPriceByLookupKey(ctx, fmt.Sprintf("%s_recurring", accessType))
	if err != nil {
		return nil, err
	}

	bindingMonths := 0
	phases := []billing.SchedulePhase{{PriceID: recurring.ID}}
	priceNow := recurring.UnitAmountCents
	if months := s.bindingMonths[accessType]; months > 1 && !wasCovered {
		binding, err := s.client.GetPriceByLookupKey(ctx, fmt.Sprintf("%s_binding", accessType))
		if err != nil {
			return nil, err
		}
		bindingMonths = months
		phases = []billing.SchedulePhase{
			{PriceID: binding.ID, Months: months},
			{PriceID: recurring.ID},
		}
		priceNow = binding.UnitAmountCents * int64(months)
	}

	if err := checkExpectedPrices(expected, applyDiscount(priceNow, m.DiscountPercent), applyDiscount(recurring.UnitAmountCents, m.DiscountPercent)); err != nil {
		return nil, err
	}

	// Idempotent restart: whatever arrangement exists for this pair is
	// cancelled before the new one is scheduled.
	if ref, err := s.members.GetSubscriptionRef(ctx, memberID, accessType); err != nil {
		return nil, err
	} else if ref != nil {
		if err := s.cancelArrangement(ctx, ref); err != nil {
			return nil, err
		}
	}

	metadata := map[string]string{
		"member_id":         strconv.Itoa(memberID),
		"subscription_type": string(accessType),
	}
	scheduleID, err := s.client.CreateSchedule(ctx, customerRef, billingStart, phases, metadata)
	if err != nil {
		return nil, err
	}

	err = s.members.UpsertSubscriptionRef(ctx, &member.SubscriptionRef{
		MemberID:   memberID,
		AccessType: accessType,
		State:      member.StateScheduled,
		ExternalID: scheduleID,
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubscriptionStarted(string(accessType))
	logger.Infof("Subscription started: member %d %s, billing from %s (binding %d months)",
		memberID, accessType, billingStart.Format("2006-01-02"), bindingMonths)

	if s.email != nil {
		if err := s.email.SendSubscriptionStarted(ctx, m.Email, m.Firstname, string(accessType), billingStart); err != nil {
			logger.Errorf("Failed to queue subscription email for member %d: %v", memberID, err)
		}
	}

	return &StartResult{
		AccessType:    accessType,
		ScheduleID:    scheduleID,
		BillingStart:  billingStart,
		BindingMonths: bindingMonths,
		WasCovered:    wasCovered,
	}, nil
}

// Pause stops collection on a live arrangement. The billing cycle keeps
// running, so a configured binding period still elapses while paused.
func (s *service) Pause(ctx context.Context, memberID int, accessType span.AccessType) error {
	if !accessType.Valid() {
		return ErrInvalidAccessType
	}

	ref, err := s.members.GetSubscriptionRef(ctx, memberID, accessType)
	if err != nil {
		return err
	}

	switch StateOf(ref) {
	case StateNone:
		return ErrNoSubscription
	case StateScheduled:
		return ErrNotLive
	case StatePaused:
		return nil
	case StateLive:
	}

	if err := s.client.SetPauseCollection(ctx, ref.ExternalID, true); err != nil {
		return err
	}
	return s.members.SetSubscriptionPaused(ctx, memberID, accessType, true)
}

// Resume cancels the paused arrangement and starts a fresh one rather than
// un-pausing in place. That shifts the renewal anniversary slightly, but
// avoids reconstructing proration state on the processor side.
func (s *service) Resume(ctx context.Context, memberID int, accessType span.AccessType, earliestStart time.Time) (*StartResult, error) {
	if !accessType.Valid() {
		return nil, ErrInvalidAccessType
	}

	ref, err := s.members.GetSubscriptionRef(ctx, memberID, accessType)
	if err != nil {
		return nil, err
	}

	switch StateOf(ref) {
	case StateNone:
		return nil, ErrNoSubscription
	case StateScheduled, StateLive:
		return nil, ErrNotPaused
	case StatePaused:
	}

	if err := s.cancelArrangement(ctx, ref); err != nil {
		return nil, err
	}
	if err := s.members.ClearSubscriptionRef(ctx, memberID, accessType); err != nil {
		return nil, err
	}

	return s.Start(ctx, memberID, accessType, earliestStart, ExpectedPrices{})
}

func (s *service) Cancel(ctx context.Context, memberID int, accessType span.AccessType) error {
	if !accessType.Valid() {
		return ErrInvalidAccessType
	}

	ref, err := s.members.GetSubscriptionRef(ctx, memberID, accessType)
	if err != nil {
		return err
	}
	if ref == nil {
		// Already gone; cancelling twice is fine.
		return nil
	}

	if err := s.cancelArrangement(ctx, ref); err != nil {
		return err
	}
	if err := s.members.ClearSubscriptionRef(ctx, memberID, accessType); err != nil {
		return err
	}

	metrics.RecordSubscriptionCancelled(string(accessType))
	logger.Infof("Subscription cancelled: member %d %s (%s)", memberID, accessType, ref.ExternalID)
	return nil
}

func (s *service) List(ctx context.Context, memberID int) ([]Status, error) {
	refs, err := s.members.ListSubscriptionRefs(ctx, memberID)
	if err != nil {
		return nil, err
	}

	byType := make(map[span.AccessType]*member.SubscriptionRef, len(refs))
	for i := range refs {
		byType[refs[i].AccessType] = &refs[i]
	}

	all := span.AllAccessTypes()
	statuses := make([]Status, 0, len(all))
	for _, accessType := range all {
		ref := byType[accessType]
		status := Status{AccessType: accessType, State: StateOf(ref)}
		if ref != nil {
			status.ExternalID = ref.ExternalID
			status.UpdatedAt = &ref.UpdatedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// cancelArrangement tears down the remote side of a reference. An arrangement
// the processor no longer knows about is treated as already cancelled, which
// self-heals a missed deletion callback.
func (s *service) cancelArrangement(ctx context.Context, ref *member.SubscriptionRef) error {
	var err error
	switch ref.State {
	case member.StateScheduled:
		err = s.client.CancelSchedule(ctx, ref.ExternalID)
	case member.StateLive:
		err = s.client.CancelSubscription(ctx, ref.ExternalID)
	default:
		return fmt.Errorf("unknown subscription ref state %q", ref.State)
	}

	if errors.Is(err, billing.ErrArrangementNotFound) {
		logger.Infof("Arrangement %s already gone at processor, clearing local reference", ref.ExternalID)
		return nil
	}
	return err
}

func (s *service) ensureCustomer(ctx context.Context, m *member.Member) (string, error) {
	if m.BillingCustomerRef != nil && *m.BillingCustomerRef != "" {
		return *m.BillingCustomerRef, nil
	}

	ref, err := s.client.CreateCustomer(ctx, m.ID, m.Email, m.Firstname)
	if err != nil {
		return "", err
	}
	if err := s.members.SetBillingCustomerRef(ctx, m.ID, ref); err != nil {
		return "", err
	}
	return ref, nil
}

func checkExpectedPrices(expected ExpectedPrices, nowCents, recurringCents int64) error {
	if expected.NowCents != nil && *expected.NowCents != nowCents {
		return fmt.Errorf("%w: expected %d now, computed %d", ErrPriceMismatch, *expected.NowCents, nowCents)
	}
	if expected.RecurringCents != nil && *expected.RecurringCents != recurringCents {
		return fmt.Errorf("%w: expected %d recurring, computed %d", ErrPriceMismatch, *expected.RecurringCents, recurringCents)
	}
	return nil
}

func applyDiscount(cents int64, discountPercent int) int64 {
	if discountPercent <= 0 {
		return cents
	}
	return cents * int64(100-discountPercent) / 100
}
