package span

import (
	"context"
	"errors"
	"time"

	"github.com/makerspace/makeradmin-sub000/internal/metrics"
)

var (
	ErrInvalidAccessType = errors.New("invalid access type")
	ErrInvalidDays       = errors.New("days must be positive")
)

type Service interface {
	IsActive(ctx context.Context, memberID int, accessType AccessType, on time.Time) (bool, error)
	LatestEnd(ctx context.Context, memberID int, accessType AccessType) (*time.Time, error)
	ExtendOrCreate(ctx context.Context, memberID int, accessType AccessType, days int, earliestStart time.Time, reason, source string) (time.Time, error)
	MemberSpans(ctx context.Context, memberID int) ([]Span, error)
	AccessSummary(ctx context.Context, memberID int) ([]AccessStatus, error)
	Delete(ctx context.Context, id int, reason string) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) IsActive(ctx context.Context, memberID int, accessType AccessType, on time.Time) (bool, error) {
	if !accessType.Valid() {
		return false, ErrInvalidAccessType
	}
	return s.repo.IsActive(ctx, memberID, accessType, on)
}

func (s *service) LatestEnd(ctx context.Context, memberID int, accessType AccessType) (*time.Time, error) {
	if !accessType.Valid() {
		return nil, ErrInvalidAccessType
	}
	return s.repo.LatestEnd(ctx, memberID, accessType)
}

func (s *service) ExtendOrCreate(ctx context.Context, memberID int, accessType AccessType, days int, earliestStart time.Time, reason, source string) (time.Time, error) {
	if !accessType.Valid() {
		return time.Time{}, ErrInvalidAccessType
	}
	if days <= 0 {
		return time.Time{}, ErrInvalidDays
	}

	end, err := s.repo.ExtendOrCreate(ctx, memberID, accessType, days, earliestStart, reason)
	if err != nil {
		return time.Time{}, err
	}

	metrics.RecordSpanExtended(string(accessType), source)
	return end, nil
}

func (s *service) MemberSpans(ctx context.Context, memberID int) ([]Span, error) {
	return s.repo.ListByMember(ctx, memberID)
}

func (s *service) AccessSummary(ctx context.Context, memberID int) ([]AccessStatus, error) {
	now := time.Now()
	statuses := make([]AccessStatus, 0, 3)
	for _, t := range AllAccessTypes() {
		active, err := s.repo.IsActive(ctx, memberID, t, now)
		if err != nil {
			return nil, err
		}
		end, err := s.repo.LatestEnd(ctx, memberID, t)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, AccessStatus{Type: t, ActiveToday: active, EndDate: end})
	}
	return statuses, nil
}

func (s *service) Delete(ctx context.Context, id int, reason string) error {
	return s.repo.SoftDelete(ctx, id, reason)
}
