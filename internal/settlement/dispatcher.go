// Package settlement pays out settled rounds through an external wallet gateway.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"crashfair/internal/logger"
)

var ErrSettlementFailed = errors.New("settlement: failed")

const (
	callTimeout    = 3 * time.Second
	firstPassLimit = 16
)

// Settlement credits (or debits, when negative) a participant for a round.
// Gateways must treat (RoundID, ParticipantID) as an idempotency key.
type Settlement struct {
	RoundID       string            `json:"round_id"`
	ParticipantID string            `json:"participant_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Reason        string            `json:"reason"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (s Settlement) Key() string {
	return s.RoundID + ":" + s.ParticipantID
}

type Gateway interface {
	Settle(ctx context.Context, s Settlement) error
}

type RetryPolicy struct {
	MaxRetries int
	Interval   time.Duration
}

// Report is the outcome of the first settlement pass of a round.
type Report struct {
	Settled []string
	Pending []string
}

// RetryResult is delivered once a pending settlement lands or is abandoned.
type RetryResult struct {
	Settlement Settlement
	Attempts   int
	Err        error
}

type Dispatcher struct {
	gateway Gateway
	policy  RetryPolicy
	results chan RetryResult
	wg      sync.WaitGroup
	log     *logger.Logger
}

func NewDispatcher(gateway Gateway, policy RetryPolicy, log *logger.Logger) *Dispatcher {
	if policy.Interval <= 0 {
		policy.Interval = 500 * time.Millisecond
	}
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	return &Dispatcher{
		gateway: gateway,
		policy:  policy,
		results: make(chan RetryResult, 256),
		log:     log.With("settlement"),
	}
}

// Results streams the final outcome of every retried settlement.
func (d *Dispatcher) Results() <-chan RetryResult {
	return d.results
}

// Dispatch makes one attempt per settlement concurrently and hands every failure to its
// own retry goroutine. It returns after the first pass; retries never hold it up.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []Settlement) Report {
	failed := make([]bool, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(firstPassLimit)
	for i, s := range batch {
		g.Go(func() error {
			if err := d.attempt(gctx, s); err != nil {
				failed[i] = true
				d.log.Warn().Err(err).Str("round_id", s.RoundID).Str("participant", s.ParticipantID).
					Msg("[SETTLE] first attempt failed, scheduling retry")
			}
			// failures are per participant; never cancel the group
			return nil
		})
	}
	g.Wait()

	var report Report
	for i, s := range batch {
		if failed[i] {
			report.Pending = append(report.Pending, s.ParticipantID)
			d.retry(s)
			continue
		}
		report.Settled = append(report.Settled, s.ParticipantID)
	}
	return report
}

// Wait blocks until all retry goroutines finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) attempt(ctx context.Context, s Settlement) error {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := d.gateway.Settle(callCtx, s); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSettlementFailed, s.Key(), err)
	}
	return nil
}

func (d *Dispatcher) retry(s Settlement) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = d.policy.Interval
		b.MaxInterval = 30 * d.policy.Interval
		b.MaxElapsedTime = 0

		// the first pass already made attempt 1
		attempts := 1
		err := backoff.Retry(func() error {
			attempts++
			return d.attempt(context.Background(), s)
		}, backoff.WithMaxRetries(b, uint64(d.policy.MaxRetries-1)))

		if err != nil {
			d.log.Error().Err(err).Str("round_id", s.RoundID).Str("participant", s.ParticipantID).
				Int("attempts", attempts).Msg("[SETTLE] giving up, manual audit required")
		} else {
			d.log.Info().Str("round_id", s.RoundID).Str("participant", s.ParticipantID).
				Int("attempts", attempts).Msg("[SETTLE] retry succeeded")
		}

		select {
		case d.results <- RetryResult{Settlement: s, Attempts: attempts, Err: err}:
		default:
			d.log.Warn().Str("round_id", s.RoundID).Msg("[SETTLE] result channel full")
		}
	}()
}
