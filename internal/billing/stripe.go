package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

type stripeClient struct {
	api *client.API
}

func NewStripeClient(apiKey string) Client {
	return &stripeClient{api: client.New(apiKey, nil)}
}

// retry wraps a Stripe call with bounded backoff. Client errors (4xx) are
// permanent; only transport failures and 5xx responses are retried.
func retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil {
			var sErr *stripe.Error
			if errors.As(err, &sErr) && sErr.HTTPStatusCode > 0 && sErr.HTTPStatusCode < 500 {
				return v, backoff.Permanent(err)
			}
		}
		return v, err
	}, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

func mapNotFound(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) && sErr.Code == stripe.ErrorCodeResourceMissing {
		return ErrArrangementNotFound
	}
	return err
}

func (c *stripeClient) CreateCustomer(ctx context.Context, memberID int, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("member_id", strconv.Itoa(memberID))

	customer, err := retry(ctx, func() (*stripe.Customer, error) {
		return c.api.Customers.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create billing customer: %w", err)
	}
	return customer.ID, nil
}

func (c *stripeClient) CreateSchedule(ctx context.Context, customerRef string, startAt time.Time, phases []SchedulePhase, metadata map[string]string) (string, error) {
	phaseParams := make([]*stripe.SubscriptionSchedulePhaseParams, 0, len(phases))
	for _, phase := range phases {
		p := &stripe.SubscriptionSchedulePhaseParams{
			Items: []*stripe.SubscriptionSchedulePhaseItemParams{
				{
					Price:    stripe.String(phase.PriceID),
					Quantity: stripe.Int64(1),
					// Item metadata is copied onto invoice lines, which is
					// where renewal handling reads it back.
					Metadata: metadata,
				},
			},
			Metadata: metadata,
		}
		if phase.Months > 0 {
			p.Iterations = stripe.Int64(int64(phase.Months))
		}
		phaseParams = append(phaseParams, p)
	}

	params := &stripe.SubscriptionScheduleParams{
		Customer:    stripe.String(customerRef),
		StartDate:   stripe.Int64(startAt.Unix()),
		EndBehavior: stripe.String("release"),
		Phases:      phaseParams,
	}
	params.Context = ctx

	schedule, err := retry(ctx, func() (*stripe.SubscriptionSchedule, error) {
		return c.api.SubscriptionSchedules.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create subscription schedule: %w", err)
	}
	return schedule.ID, nil
}

func (c *stripeClient) CancelSchedule(ctx context.Context, scheduleID string) error {
	params := &stripe.SubscriptionScheduleCancelParams{}
	params.Context = ctx

	_, err := retry(ctx, func() (*stripe.SubscriptionSchedule, error) {
		return c.api.SubscriptionSchedules.Cancel(scheduleID, params)
	})
	return mapNotFound(err)
}

func (c *stripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := retry(ctx, func() (*stripe.Subscription, error) {
		return c.api.Subscriptions.Cancel(subscriptionID, params)
	})
	return mapNotFound(err)
}

func (c *stripeClient) SetPauseCollection(ctx context.Context, subscriptionID string, paused bool) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	if paused {
		// Billing keeps cycling (the binding-period clock keeps running) but
		// nothing is collected while paused.
		params.PauseCollection = &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
		}
	} else {
		params.AddExtra("pause_collection", "")
	}

	_, err := retry(ctx, func() (*stripe.Subscription, error) {
		return c.api.Subscriptions.Update(subscriptionID, params)
	})
	return mapNotFound(err)
}

func (c *stripeClient) GetPriceByLookupKey(ctx context.Context, lookupKey string) (*Price, error) {
	params := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{lookupKey}),
	}
	params.Context = ctx

	iter := c.api.Prices.List(params)
	for iter.Next() {
		p := iter.Price()
		months := 0
		if p.Recurring != nil {
			switch p.Recurring.Interval {
			case stripe.PriceRecurringIntervalMonth:
				months = int(p.Recurring.IntervalCount)
			case stripe.PriceRecurringIntervalYear:
				months = int(p.Recurring.IntervalCount) * 12
			}
		}
		return &Price{
			ID:              p.ID,
			LookupKey:       p.LookupKey,
			UnitAmountCents: p.UnitAmount,
			IntervalMonths:  months,
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no price configured for lookup key %q", lookupKey)
}
