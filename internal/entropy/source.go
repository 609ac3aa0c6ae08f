// Package entropy fetches the public seed mixed into every round.
package entropy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crashfair/internal/fairness"
	"crashfair/internal/logger"
)

var ErrEntropyUnavailable = errors.New("entropy: public seed unavailable")

// Source returns an opaque value nobody could predict before it was produced.
type Source interface {
	Name() string
	PublicSeed(ctx context.Context) (string, error)
}

// Seed is a fetched public seed. Degraded means the external source failed and a
// locally generated value was substituted.
type Seed struct {
	Value    string `json:"value"`
	Source   string `json:"source"`
	Degraded bool   `json:"degraded"`
}

// LocalSource draws from crypto/rand. Only used as a fallback.
type LocalSource struct{}

func (LocalSource) Name() string { return "local" }

func (LocalSource) PublicSeed(context.Context) (string, error) {
	return fairness.GenerateSeed()
}

// Resilient bounds the primary source with a timeout and substitutes the fallback
// on any failure.
type Resilient struct {
	primary  Source
	fallback Source
	timeout  time.Duration
	log      *logger.Logger
}

func NewResilient(primary Source, timeout time.Duration, log *logger.Logger) *Resilient {
	return &Resilient{
		primary:  primary,
		fallback: LocalSource{},
		timeout:  timeout,
		log:      log.With("entropy"),
	}
}

func (r *Resilient) Fetch(ctx context.Context) (Seed, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	value, err := r.primary.PublicSeed(fetchCtx)
	if err == nil && value != "" {
		return Seed{Value: value, Source: r.primary.Name()}, nil
	}
	if err == nil {
		err = errors.New("empty public seed")
	}
	r.log.Warn().Err(err).Str("source", r.primary.Name()).Dur("timeout", r.timeout).
		Msg("[ENTROPY] public seed fetch failed, substituting local value")

	value, ferr := r.fallback.PublicSeed(ctx)
	if ferr != nil {
		return Seed{}, fmt.Errorf("%w: %v (fallback: %v)", ErrEntropyUnavailable, err, ferr)
	}
	return Seed{Value: value, Source: r.fallback.Name(), Degraded: true}, nil
}
