package game

import (
	"context"
	"sort"
	"time"

	"crashfair/internal/logger"
	"crashfair/internal/settlement"
)

const UNMATCHED_TTL = time.Minute

type GameEngine interface {
	GetType() GameType
	Start(ctx context.Context) error
	Stop() error
	CurrentRound() (Snapshot, bool)
	History(limit int) []Summary
	PlaceBet(ctx context.Context, req BetRequest) (BetResponse, error)
	ResolveSettlement(roundID, participantID string, failed bool) bool
	Restore(summaries []Summary)
}

// Cashier is implemented by engines with a live phase.
type Cashier interface {
	Cashout(ctx context.Context, req CashoutRequest) (CashoutResponse, error)
}

type Registry struct {
	engines map[GameType]GameEngine
	log     *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		engines: make(map[GameType]GameEngine),
		log:     log.With("registry"),
	}
}

func (r *Registry) Register(engine GameEngine) {
	r.engines[engine.GetType()] = engine
}

func (r *Registry) Engine(gameType GameType) (GameEngine, error) {
	engine, exists := r.engines[gameType]
	if !exists {
		return nil, ErrUnknownGame
	}
	return engine, nil
}

func (r *Registry) Types() []GameType {
	types := make([]GameType, 0, len(r.engines))
	for t := range r.engines {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Warm fills each engine's history from an archive before the engines start.
func (r *Registry) Warm(ctx context.Context, load func(ctx context.Context, gameType GameType) ([]Summary, error)) {
	for _, gameType := range r.Types() {
		summaries, err := load(ctx, gameType)
		if err != nil {
			r.log.Warn().Err(err).Str("game", string(gameType)).Msg("[FACTORY] history warm-up failed")
			continue
		}
		r.engines[gameType].Restore(summaries)
	}
}

func (r *Registry) StartAll(ctx context.Context) error {
	for _, gameType := range r.Types() {
		if err := r.engines[gameType].Start(ctx); err != nil {
			return err
		}
		r.log.Info().Str("game", string(gameType)).Msg("[FACTORY] started engine")
	}
	return nil
}

func (r *Registry) StopAll() error {
	for _, gameType := range r.Types() {
		if err := r.engines[gameType].Stop(); err != nil {
			return err
		}
		r.log.Info().Str("game", string(gameType)).Msg("[FACTORY] stopped engine")
	}
	return nil
}

// TrackSettlements clears the pending flag on archived rounds as background retries finish.
// A retry can finish before its round reaches history, so unmatched results are
// offered again on every sweep until UNMATCHED_TTL passes.
func (r *Registry) TrackSettlements(ctx context.Context, results <-chan settlement.RetryResult) {
	type unmatched struct {
		res  settlement.RetryResult
		seen time.Time
	}
	var backlog []unmatched

	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			r.logRetry(res)
			if !r.resolve(res) {
				backlog = append(backlog, unmatched{res: res, seen: time.Now()})
			}
		case <-sweep.C:
			kept := backlog[:0]
			for _, u := range backlog {
				if r.resolve(u.res) {
					continue
				}
				if time.Since(u.seen) < UNMATCHED_TTL {
					kept = append(kept, u)
				}
			}
			backlog = kept
		}
	}
}

func (r *Registry) resolve(res settlement.RetryResult) bool {
	for _, engine := range r.engines {
		if engine.ResolveSettlement(res.Settlement.RoundID, res.Settlement.ParticipantID, res.Err != nil) {
			return true
		}
	}
	return false
}

func (r *Registry) logRetry(res settlement.RetryResult) {
	ev := r.log.Info()
	if res.Err != nil {
		ev = r.log.Error().Err(res.Err)
	}
	ev.Str("round_id", res.Settlement.RoundID).Str("participant", res.Settlement.ParticipantID).
		Int("attempts", res.Attempts).Msg("[SETTLE] retry finished")
}
