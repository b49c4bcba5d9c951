package observability

import (
	"context"
	"errors"
	"fmt"

	"molluscadb/pkg/domain"
)

// Subscriber is the store surface FollowSnapshots reads from.
type Subscriber interface {
	Subscribe(ctx context.Context, c domain.Collection, fn func(domain.Snapshot)) (domain.Subscription, error)
}

// FollowSnapshots records every snapshot of every collection until the
// returned stop function runs.
func (m *Metrics) FollowSnapshots(ctx context.Context, src Subscriber) (func() error, error) {
	subs := make([]domain.Subscription, 0, len(domain.Collections()))
	stop := func() error {
		var errs []error
		for _, sub := range subs {
			errs = append(errs, sub.Close())
		}
		return errors.Join(errs...)
	}
	for _, c := range domain.Collections() {
		sub, err := src.Subscribe(ctx, c, func(s domain.Snapshot) {
			m.RecordSnapshot(string(s.Collection), len(s.Entries))
		})
		if err != nil {
			_ = stop()
			return nil, fmt.Errorf("follow snapshots: %w", err)
		}
		subs = append(subs, sub)
	}
	return stop, nil
}
