package span

import (
	"context"
	"time"
)

type Repository interface {
	ListByMember(ctx context.Context, memberID int) ([]Span, error)
	IsActive(ctx context.Context, memberID int, accessType AccessType, on time.Time) (bool, error)
	LatestEnd(ctx context.Context, memberID int, accessType AccessType) (*time.Time, error)
	ExtendOrCreate(ctx context.Context, memberID int, accessType AccessType, days int, earliestStart time.Time, reason string) (time.Time, error)
	SoftDelete(ctx context.Context, id int, reason string) error
}
