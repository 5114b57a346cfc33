// Package retry holds the exponential backoff policy shared by fetch and push retry sites.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bigredeye/scoreledger/internal/config"
)

// Policy doubles (by Multiplier) the delay starting at Initial and gives up
// once the next delay would exceed Ceiling.
type Policy struct {
	Initial    time.Duration
	Multiplier float64
	Ceiling    time.Duration
}

func FromConfig(c config.Backoff) Policy {
	return Policy{
		Initial:    c.Initial,
		Multiplier: c.Multiplier,
		Ceiling:    c.Ceiling,
	}
}

func (p Policy) normalized() Policy {
	if p.Initial <= 0 {
		p.Initial = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Ceiling < p.Initial {
		p.Ceiling = p.Initial
	}
	return p
}

// Delays lists every delay the policy allows, in order.
func (p Policy) Delays() []time.Duration {
	b := p.NewBackOff()
	var delays []time.Duration
	for {
		next := b.NextBackOff()
		if next == backoff.Stop {
			return delays
		}
		delays = append(delays, next)
	}
}

// NewBackOff returns a fresh backoff.BackOff following the policy.
func (p Policy) NewBackOff() backoff.BackOff {
	p = p.normalized()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Initial
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(float64(p.Ceiling) * p.Multiplier)
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &ceilingBackOff{inner: exp, ceiling: p.Ceiling}
}

type ceilingBackOff struct {
	inner   *backoff.ExponentialBackOff
	ceiling time.Duration
}

func (b *ceilingBackOff) NextBackOff() time.Duration {
	next := b.inner.NextBackOff()
	if next == backoff.Stop || next > b.ceiling {
		return backoff.Stop
	}
	return next
}

func (b *ceilingBackOff) Reset() {
	b.inner.Reset()
}

// Do runs op until it succeeds, returns a permanent error, or the policy is exhausted.
// notify is called before every sleep with the failed attempt number.
func (p Policy) Do(ctx context.Context, op func(attempt int) error, notify func(attempt int, err error, next time.Duration)) error {
	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op(attempt)
		},
		backoff.WithContext(p.NewBackOff(), ctx),
		func(err error, next time.Duration) {
			if notify != nil {
				notify(attempt, err, next)
			}
		},
	)
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
