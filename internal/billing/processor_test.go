package billing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/makerspace/makeradmin-sub000/internal/logger"
	"github.com/makerspace/makeradmin-sub000/internal/member"
	"github.com/makerspace/makeradmin-sub000/internal/span"
	"github.com/makerspace/makeradmin-sub000/internal/transaction"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

type MockEventRepo struct{ mock.Mock }

func (m *MockEventRepo) Record(ctx context.Context, event *Event) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventRepo) ApplyExtensions(ctx context.Context, provider, eventID string, extensions []LedgerExtension) ([]time.Time, error) {
	args := m.Called(ctx, provider, eventID, extensions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]time.Time), args.Error(1)
}

func (m *MockEventRepo) MarkProcessed(ctx context.Context, provider, eventID string) error {
	return m.Called(ctx, provider, eventID).Error(0)
}

func (m *MockEventRepo) MarkFailed(ctx context.Context, provider, eventID string, processingError string) error {
	return m.Called(ctx, provider, eventID, processingError).Error(0)
}

type MockMemberRepo struct{ mock.Mock }

func (m *MockMemberRepo) GetMember(ctx context.Context, id int) (*member.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.Member), args.Error(1)
}

func (m *MockMemberRepo) FindByBillingCustomerRef(ctx context.Context, ref string) (*member.Member, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.Member), args.Error(1)
}

func (m *MockMemberRepo) SetBillingCustomerRef(ctx context.Context, id int, ref string) error {
	return m.Called(ctx, id, ref).Error(0)
}

func (m *MockMemberRepo) SetBillingPaymentRef(ctx context.Context, id int, ref string) error {
	return m.Called(ctx, id, ref).Error(0)
}

func (m *MockMemberRepo) GetSubscriptionRef(ctx context.Context, memberID int, accessType span.AccessType) (*member.SubscriptionRef, error) {
	args := m.Called(ctx, memberID, accessType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.SubscriptionRef), args.Error(1)
}

func (m *MockMemberRepo) ListSubscriptionRefs(ctx context.Context, memberID int) ([]member.SubscriptionRef, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]member.SubscriptionRef), args.Error(1)
}

func (m *MockMemberRepo) UpsertSubscriptionRef(ctx context.Context, ref *member.SubscriptionRef) error {
	return m.Called(ctx, ref).Error(0)
}

func (m *MockMemberRepo) SetSubscriptionPaused(ctx context.Context, memberID int, accessType span.AccessType, paused bool) error {
	return m.Called(ctx, memberID, accessType, paused).Error(0)
}

func (m *MockMemberRepo) ClearSubscriptionRef(ctx context.Context, memberID int, accessType span.AccessType) error {
	return m.Called(ctx, memberID, accessType).Error(0)
}

func (m *MockMemberRepo) ClearSubscriptionRefIfMatches(ctx context.Context, memberID int, accessType span.AccessType, externalIDs ...string) (bool, error) {
	callArgs := []interface{}{ctx, memberID, accessType}
	for _, id := range externalIDs {
		callArgs = append(callArgs, id)
	}
	args := m.Called(callArgs...)
	return args.Bool(0), args.Error(1)
}

type MockTransactionFailer struct{ mock.Mock }

func (m *MockTransactionFailer) Fail(ctx context.Context, transactionID int) error {
	return m.Called(ctx, transactionID).Error(0)
}

func newTestProcessor() (*Processor, *MockEventRepo, *MockMemberRepo, *MockTransactionFailer) {
	events := new(MockEventRepo)
	members := new(MockMemberRepo)
	failer := new(MockTransactionFailer)
	return NewProcessor(events, members, failer), events, members, failer
}

func invoiceEvent(id string, memberID int, accessType string, start, end int64) *Event {
	raw := fmt.Sprintf(`{
		"id": %q,
		"lines": {"data": [
			{"metadata": {"member_id": "%d", "subscription_type": %q},
			 "period": {"start": %d, "end": %d}}
		]}
	}`, id, memberID, accessType, start, end)
	return &Event{Provider: "stripe", ID: "evt_" + id, Type: EventInvoicePaid, Raw: []byte(raw)}
}

func TestProcess_InvoicePaidExtendsLedger(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	// 31-day billing period.
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	event := invoiceEvent("in_1", 7, "labaccess", start.Unix(), end.Unix())

	events.On("Record", mock.Anything, event).Return(false, nil)
	events.On("ApplyExtensions", mock.Anything, "stripe", "evt_in_1", []LedgerExtension{
		{MemberID: 7, AccessType: span.TypeLabaccess, Days: 31, Start: start,
			Reason: "billing invoice in_1 line 0"},
	}).Return([]time.Time{end}, nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_in_1").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
	events.AssertExpectations(t)
}

func TestProcess_DuplicateEventSkipsHandling(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	event := invoiceEvent("in_1", 7, "labaccess", 1000, 1000+31*86400)
	events.On("Record", mock.Anything, event).Return(true, nil)

	require.NoError(t, p.Process(context.Background(), event))
	events.AssertNotCalled(t, "ApplyExtensions",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_InvoiceLineWithBadMetadataIsSkipped(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	raw := `{
		"id": "in_2",
		"lines": {"data": [
			{"metadata": {}, "period": {"start": 0, "end": 2678400}},
			{"metadata": {"member_id": "7", "subscription_type": "membership"},
			 "period": {"start": 0, "end": 31536000}}
		]}
	}`
	event := &Event{Provider: "stripe", ID: "evt_in_2", Type: EventInvoicePaid, Raw: []byte(raw)}

	events.On("Record", mock.Anything, event).Return(false, nil)
	events.On("ApplyExtensions", mock.Anything, "stripe", "evt_in_2", []LedgerExtension{
		{MemberID: 7, AccessType: span.TypeMembership, Days: 365, Start: time.Unix(0, 0).UTC(),
			Reason: "billing invoice in_2 line 1"},
	}).Return([]time.Time{time.Unix(31536000, 0).UTC()}, nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_in_2").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
	events.AssertExpectations(t)
}

func TestProcess_HandlerFailureMarksFailedAndReturnsError(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	event := invoiceEvent("in_3", 7, "labaccess", 0, 31*86400)
	events.On("Record", mock.Anything, event).Return(false, nil)
	events.On("ApplyExtensions", mock.Anything, "stripe", "evt_in_3", mock.Anything).
		Return(nil, errors.New("db down"))
	events.On("MarkFailed", mock.Anything, "stripe", "evt_in_3", mock.Anything).Return(nil)

	err := p.Process(context.Background(), event)
	require.Error(t, err)
	events.AssertCalled(t, "MarkFailed", mock.Anything, "stripe", "evt_in_3", mock.Anything)
	events.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_RedeliveredInvoiceAppliesLinesOnce(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	// Two lines on one invoice. The first delivery dies partway through, so
	// nothing may stick; the redelivery then applies the full batch exactly
	// once.
	raw := `{
		"id": "in_4",
		"lines": {"data": [
			{"metadata": {"member_id": "7", "subscription_type": "labaccess"},
			 "period": {"start": 0, "end": 2678400}},
			{"metadata": {"member_id": "7", "subscription_type": "membership"},
			 "period": {"start": 0, "end": 31536000}}
		]}
	}`
	event := &Event{Provider: "stripe", ID: "evt_in_4", Type: EventInvoicePaid, Raw: []byte(raw)}

	wantBatch := []LedgerExtension{
		{MemberID: 7, AccessType: span.TypeLabaccess, Days: 31, Start: time.Unix(0, 0).UTC(),
			Reason: "billing invoice in_4 line 0"},
		{MemberID: 7, AccessType: span.TypeMembership, Days: 365, Start: time.Unix(0, 0).UTC(),
			Reason: "billing invoice in_4 line 1"},
	}

	events.On("Record", mock.Anything, event).Return(false, nil).Twice()
	events.On("ApplyExtensions", mock.Anything, "stripe", "evt_in_4", wantBatch).
		Return(nil, errors.New("connection reset")).Once()
	events.On("MarkFailed", mock.Anything, "stripe", "evt_in_4", mock.Anything).Return(nil).Once()
	events.On("ApplyExtensions", mock.Anything, "stripe", "evt_in_4", wantBatch).
		Return([]time.Time{time.Unix(2678400, 0).UTC(), time.Unix(31536000, 0).UTC()}, nil).Once()
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_in_4").Return(nil).Once()

	require.Error(t, p.Process(context.Background(), event))
	require.NoError(t, p.Process(context.Background(), event))

	// Both lines always travel as one batch; no line is ever retried on its
	// own after a partial failure.
	events.AssertNumberOfCalls(t, "ApplyExtensions", 2)
	events.AssertExpectations(t)
}

func TestProcess_SubscriptionCreatedGoesLive(t *testing.T) {
	p, events, members, _ := newTestProcessor()

	raw := `{"id": "sub_1", "schedule": "sched_1", "customer": "cus_1",
		"metadata": {"member_id": "7", "subscription_type": "labaccess"}}`
	event := &Event{Provider: "stripe", ID: "evt_sub_1", Type: EventSubscriptionCreated, Raw: []byte(raw)}

	events.On("Record", mock.Anything, event).Return(false, nil)
	members.On("UpsertSubscriptionRef", mock.Anything, mock.MatchedBy(func(ref *member.SubscriptionRef) bool {
		return ref.MemberID == 7 && ref.AccessType == span.TypeLabaccess &&
			ref.State == member.StateLive && ref.ExternalID == "sub_1" && !ref.Paused
	})).Return(nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_sub_1").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
	members.AssertExpectations(t)
}

func TestProcess_SubscriptionDeletedClearsMatchingRef(t *testing.T) {
	p, events, members, _ := newTestProcessor()

	raw := `{"id": "sub_1", "schedule": "sched_1",
		"metadata": {"member_id": "7", "subscription_type": "labaccess"}}`
	event := &Event{Provider: "stripe", ID: "evt_del_1", Type: EventSubscriptionDeleted, Raw: []byte(raw)}

	events.On("Record", mock.Anything, event).Return(false, nil)
	members.On("ClearSubscriptionRefIfMatches", mock.Anything, 7, span.TypeLabaccess, "sub_1", "sched_1").
		Return(true, nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_del_1").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
	members.AssertExpectations(t)
}

func TestProcess_StaleSubscriptionDeleteIsIgnored(t *testing.T) {
	p, events, members, _ := newTestProcessor()

	raw := `{"id": "sub_old", "metadata": {"member_id": "7", "subscription_type": "labaccess"}}`
	event := &Event{Provider: "stripe", ID: "evt_del_2", Type: EventSubscriptionDeleted, Raw: []byte(raw)}

	events.On("Record", mock.Anything, event).Return(false, nil)
	// The member's ref already points at a newer arrangement; nothing is removed.
	members.On("ClearSubscriptionRefIfMatches", mock.Anything, 7, span.TypeLabaccess, "sub_old").
		Return(false, nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_del_2").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
	members.AssertNotCalled(t, "ClearSubscriptionRef", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_PaymentFailedFailsTransaction(t *testing.T) {
	p, events, _, failer := newTestProcessor()

	raw := `{"id": "pi_1", "metadata": {"transaction_id": "42"}}`
	event := &Event{Provider: "stripe", ID: "evt_pi_1", Type: EventPaymentFailed, Raw: []byte(raw)}

	events.On("Record", mock.Anything, event).Return(false, nil)
	failer.On("Fail", mock.Anything, 42).Return(nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_pi_1").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
	failer.AssertExpectations(t)
}

func TestProcess_PaymentFailedForSettledTransactionIsTolerated(t *testing.T) {
	p, events, _, failer := newTestProcessor()

	raw := `{"id": "pi_2", "metadata": {"transaction_id": "42"}}`
	event := &Event{Provider: "stripe", ID: "evt_pi_2", Type: EventPaymentFailed, Raw: []byte(raw)}

	events.On("Record", mock.Anything, event).Return(false, nil)
	failer.On("Fail", mock.Anything, 42).Return(transaction.ErrNotPending)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_pi_2").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
}

func TestProcess_SetupIntentUpdatesPaymentRef(t *testing.T) {
	p, events, members, _ := newTestProcessor()

	raw := `{"customer": "cus_1", "payment_method": "pm_1"}`
	event := &Event{Provider: "stripe", ID: "evt_si_1", Type: EventSetupIntentSucceeded, Raw: []byte(raw)}

	events.On("Record", mock.Anything, event).Return(false, nil)
	members.On("FindByBillingCustomerRef", mock.Anything, "cus_1").Return(&member.Member{ID: 7}, nil)
	members.On("SetBillingPaymentRef", mock.Anything, 7, "pm_1").Return(nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_si_1").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
	members.AssertExpectations(t)
}

func TestProcess_UnknownCustomerIsIgnored(t *testing.T) {
	p, events, members, _ := newTestProcessor()

	raw := `{"customer": "cus_unknown", "setup_intent": "seti_1"}`
	event := &Event{Provider: "stripe", ID: "evt_cs_1", Type: EventCheckoutCompleted, Raw: []byte(raw)}

	events.On("Record", mock.Anything, event).Return(false, nil)
	members.On("FindByBillingCustomerRef", mock.Anything, "cus_unknown").Return(nil, member.ErrMemberNotFound)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_cs_1").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
	members.AssertNotCalled(t, "SetBillingPaymentRef", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_UnrecognizedEventTypeIsAccepted(t *testing.T) {
	p, events, _, _ := newTestProcessor()

	event := &Event{Provider: "stripe", ID: "evt_x", Type: "charge.refunded", Raw: []byte(`{}`)}
	events.On("Record", mock.Anything, event).Return(false, nil)
	events.On("MarkProcessed", mock.Anything, "stripe", "evt_x").Return(nil)

	require.NoError(t, p.Process(context.Background(), event))
}
