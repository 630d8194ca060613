package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makerspace/makeradmin-sub000/internal/accessy"
	"github.com/makerspace/makeradmin-sub000/internal/email"
	"github.com/makerspace/makeradmin-sub000/internal/logger"
	"github.com/makerspace/makeradmin-sub000/internal/member"
	"github.com/makerspace/makeradmin-sub000/internal/metrics"
	"github.com/makerspace/makeradmin-sub000/internal/product"
	"github.com/makerspace/makeradmin-sub000/internal/span"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidItemCount = errors.New("invalid item count")
	ErrInvalidPrice     = errors.New("product has invalid price")
	ErrAmountMismatch   = errors.New("cart total does not match expected amount")
	ErrAmountOutOfRange = errors.New("cart total out of allowed range")
	ErrNotPending       = errors.New("transaction is not pending")
)

// Validator is an optional per-product purchase hook (quota checks and the
// like); a non-nil error rejects the whole cart.
type Validator interface {
	ValidatePurchase(ctx context.Context, memberID int, p *product.Product, count int) error
}

type Limits struct {
	MinCents       int64
	MaxCents       int64
	ToleranceCents int64
}

type Service interface {
	ValidateAndPrice(ctx context.Context, memberID int, cart []CartItem, expectedCents int64) (int64, []LineItem, error)
	Purchase(ctx context.Context, memberID int, cart []CartItem, expectedCents int64, paymentRef string) (*Transaction, error)
	Confirm(ctx context.Context, transactionID int) error
	Fail(ctx context.Context, transactionID int) error
	ShipPendingActions(ctx context.Context, filter Filter) (shipped, skipped int, err error)
	MemberTransactions(ctx context.Context, memberID int) ([]Transaction, error)
}

type service struct {
	repo      Repository
	products  product.Repository
	members   member.Repository
	access    accessy.Client
	email     *email.Service
	validator Validator
	limits    Limits
	currency  string
}

func NewService(
	repo Repository,
	products product.Repository,
	members member.Repository,
	access accessy.Client,
	emailService *email.Service,
	validator Validator,
	limits Limits,
	currency string,
) Service {
	return &service{
		repo:      repo,
		products:  products,
		members:   members,
		access:    access,
		email:     emailService,
		validator: validator,
		limits:    limits,
		currency:  currency,
	}
}

func (s *service) ValidateAndPrice(ctx context.Context, memberID int, cart []CartItem, expectedCents int64) (int64, []LineItem, error) {
	if len(cart) == 0 {
		return 0, nil, ErrInvalidItemCount
	}

	var total int64
	lines := make([]LineItem, 0, len(cart))

	for _, item := range cart {
		if item.Count <= 0 {
			return 0, nil, ErrInvalidItemCount
		}

		p, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrProductNotFound) {
				return 0, nil, ErrProductNotFound
			}
			return 0, nil, err
		}
		if p.DeletedAt != nil {
			return 0, nil, ErrProductNotFound
		}
		if p.PriceCents < 0 {
			return 0, nil, ErrInvalidPrice
		}
		if p.SmallestMultiple > 1 && item.Count%p.SmallestMultiple != 0 {
			return 0, nil, ErrInvalidItemCount
		}

		if s.validator != nil {
			if err := s.validator.ValidatePurchase(ctx, memberID, p, item.Count); err != nil {
				return 0, nil, err
			}
		}

		rules, err := s.products.GetProductActions(ctx, p.ID)
		if err != nil {
			return 0, nil, err
		}

		amount := p.PriceCents * int64(item.Count)
		total += amount
		lines = append(lines, LineItem{
			ProductID:   p.ID,
			Count:       item.Count,
			AmountCents: amount,
			Actions:     snapshotActions(rules, item.Count),
		})
	}

	diff := total - expectedCents
	if diff < 0 {
		diff = -diff
	}
	if diff > s.limits.ToleranceCents {
		return 0, nil, ErrAmountMismatch
	}
	if total < s.limits.MinCents || total > s.limits.MaxCents {
		return 0, nil, ErrAmountOutOfRange
	}

	return total, lines, nil
}

// snapshotActions groups the product's configured rules per action type and
// multiplies by the purchased count, so N purchases of a 30-day product yield
// one action row worth 30*N days.
func snapshotActions(rules []product.Action, count int) []ActionSnapshot {
	totals := map[product.ActionType]int{}
	order := []product.ActionType{}
	for _, rule := range rules {
		if _, seen := totals[rule.Type]; !seen {
			order = append(order, rule.Type)
		}
		totals[rule.Type] += rule.ValueDays * count
	}

	snapshots := make([]ActionSnapshot, 0, len(order))
	for _, t := range order {
		snapshots = append(snapshots, ActionSnapshot{Type: t, ValueDays: totals[t]})
	}
	return snapshots
}

func (s *service) Purchase(ctx context.Context, memberID int, cart []CartItem, expectedCents int64, paymentRef string) (*Transaction, error) {
	total, lines, err := s.ValidateAndPrice(ctx, memberID, cart, expectedCents)
	if err != nil {
		return nil, err
	}

	trans, err := s.repo.Commit(ctx, &memberID, total, paymentRef, lines)
	if err != nil {
		return nil, err
	}

	logger.Infof("Transaction %d created for member %d, total %d cents", trans.ID, memberID, total)
	return trans, nil
}

func (s *service) Confirm(ctx context.Context, transactionID int) error {
	ok, err := s.repo.SetStatusIf(ctx, transactionID, StatusPending, StatusCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}

	metrics.RecordTransaction(string(StatusCompleted))
	logger.Infof("Transaction %d completed", transactionID)

	trans, err := s.repo.Get(ctx, transactionID)
	if err != nil {
		return err
	}

	s.sendReceipt(ctx, trans)

	// Payment is confirmed; ship this transaction's actions right away
	// instead of waiting for the periodic sweep.
	if _, _, err := s.ShipPendingActions(ctx, Filter{TransactionID: &transactionID}); err != nil {
		logger.Errorf("Failed to ship actions for transaction %d: %v", transactionID, err)
	}
	return nil
}

func (s *service) Fail(ctx context.Context, transactionID int) error {
	ok, err := s.repo.SetStatusIf(ctx, transactionID, StatusPending, StatusFailed)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}

	metrics.RecordTransaction(string(StatusFailed))
	logger.Infof("Transaction %d failed", transactionID)
	return nil
}

func (s *service) ShipPendingActions(ctx context.Context, filter Filter) (int, int, error) {
	rows, err := s.repo.ListPendingActions(ctx, filter)
	if err != nil {
		return 0, 0, err
	}

	shipped, skipped := 0, 0
	for _, row := range rows {
		var accessType span.AccessType
		switch row.ActionType {
		case product.ActionAddMembershipDays:
			accessType = span.TypeMembership
		case product.ActionAddLabaccessDays:
			accessType = span.TypeLabaccess

			m, err := s.members.GetMember(ctx, row.MemberID)
			if err != nil {
				logger.Errorf("Cannot load member %d for action %d: %v", row.MemberID, row.ActionID, err)
				continue
			}
			if !m.CanReceiveLabaccess() {
				// Prerequisites unmet; the action stays pending and is
				// retried by the next sweep.
				metrics.RecordActionSkipped()
				skipped++
				continue
			}
		default:
			// ListPendingActions rejects rows outside the enum, so this only
			// fires for a type added to the enum but not handled here yet.
			logger.Errorf("Unhandled action type %q for action %d, leaving pending", row.ActionType, row.ActionID)
			continue
		}

		earliest := time.Now()
		if row.TransactionCreatedAt.After(earliest) {
			earliest = row.TransactionCreatedAt
		}
		reason := fmt.Sprintf("transaction_action %d, transaction %d", row.ActionID, row.TransactionID)

		ok, end, err := s.repo.ShipAction(ctx, row.ActionID, row.MemberID, accessType, row.ValueDays, span.Date(earliest), reason)
		if err != nil {
			logger.Errorf("Failed to ship action %d: %v", row.ActionID, err)
			continue
		}
		if !ok {
			continue
		}

		shipped++
		metrics.RecordActionShipped(string(row.ActionType))
		metrics.RecordSpanExtended(string(accessType), "webshop")
		logger.Infof("Shipped action %d: member %d %s until %s", row.ActionID, row.MemberID, accessType, end.Format("2006-01-02"))

		if accessType == span.TypeLabaccess && s.access != nil {
			if err := s.access.EnsureAccess(ctx, row.MemberID); err != nil {
				// The ledger extension stands; the access system catches up
				// on the next out-of-band sync.
				logger.Errorf("Access sync failed for member %d: %v", row.MemberID, err)
			}
		}

		s.sendExtendedNotice(ctx, row.MemberID, accessType, end)
	}

	return shipped, skipped, nil
}

func (s *service) MemberTransactions(ctx context.Context, memberID int) ([]Transaction, error) {
	return s.repo.ListByMember(ctx, memberID)
}

func (s *service) sendReceipt(ctx context.Context, trans *Transaction) {
	if s.email == nil || trans.MemberID == nil {
		return
	}
	m, err := s.members.GetMember(ctx, *trans.MemberID)
	if err != nil {
		logger.Errorf("Cannot load member %d for receipt: %v", *trans.MemberID, err)
		return
	}
	if err := s.email.SendReceipt(ctx, m.Email, m.Firstname, trans.ID, trans.AmountCents, s.currency); err != nil {
		logger.Errorf("Failed to queue receipt for transaction %d: %v", trans.ID, err)
	}
}

func (s *service) sendExtendedNotice(ctx context.Context, memberID int, accessType span.AccessType, end time.Time) {
	if s.email == nil {
		return
	}
	m, err := s.members.GetMember(ctx, memberID)
	if err != nil {
		return
	}
	if err := s.email.SendAccessExtended(ctx, m.Email, m.Firstname, string(accessType), end); err != nil {
		logger.Errorf("Failed to queue access notice for member %d: %v", memberID, err)
	}
}
