package game

import (
	"context"
	"fmt"
	"time"
)

type RoundConfig struct {
	Window          time.Duration
	TickInterval    time.Duration
	InterRoundDelay time.Duration
	Limits
}

// resolver holds what differs between round-based games.
type resolver interface {
	admit(r *Round, e *Entry) error
	resolve(r *Round)
}

// RoundEngine runs rounds with no live phase: betting closes, the outcome is
// revealed at once, then every entry is settled.
type RoundEngine struct {
	*driver
	cfg      RoundConfig
	resolver resolver
}

func newRoundEngine(game GameType, cfg RoundConfig, deps Deps, res resolver) *RoundEngine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	return &RoundEngine{
		driver:   newDriver(game, deps, cfg.Limits),
		cfg:      cfg,
		resolver: res,
	}
}

func NewCoinflipEngine(cfg RoundConfig, deps Deps) *RoundEngine {
	return newRoundEngine(GameTypeCoinflip, cfg, deps, coinflip{})
}

func NewJackpotEngine(cfg RoundConfig, deps Deps) *RoundEngine {
	return newRoundEngine(GameTypeJackpot, cfg, deps, jackpot{})
}

func (e *RoundEngine) Start(ctx context.Context) error {
	if e.started {
		return fmt.Errorf("%s engine already started", e.game)
	}
	e.started = true
	e.ctx = ctx
	go e.run()
	return nil
}

func (e *RoundEngine) run() {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.tick()
	for {
		select {
		case <-e.ctx.Done():
			e.shutdown(e.cfg.InterRoundDelay)
			return
		case <-e.stop:
			e.shutdown(e.cfg.InterRoundDelay)
			return
		case cmd := <-e.commands:
			var reply commandReply
			if cmd.bet != nil {
				reply.bet, reply.err = e.acceptBet(*cmd.bet, e.resolver.admit)
			} else {
				reply.err = ErrCashoutClosed
			}
			cmd.reply <- reply
		case res := <-e.seeds:
			if e.applySeed(res) {
				e.reveal()
			}
		case res := <-e.settled:
			e.finish(res, e.cfg.InterRoundDelay)
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *RoundEngine) tick() {
	now := time.Now()
	r := e.round
	switch {
	case e.readyForNextRound(now):
		e.openRound(e.cfg.Window)
	case r == nil:
	case r.Phase == PhaseBetting && !now.Before(r.EndsAt):
		e.lock()
	}
}

func (e *RoundEngine) reveal() {
	r := e.round
	if err := r.transition(PhaseResolved); err != nil {
		e.abort(err)
		return
	}
	if err := e.driver.reveal(); err != nil {
		e.abort(err)
		return
	}
	e.resolver.resolve(r)

	e.log.Info().Str("round_id", r.ID).Float64("result", r.result.Value).
		Int64("winning_ticket", r.result.WinningTicket).Msg("[ROUND] resolved")
	e.publish("round_resolved")
	e.settle(payoutBatch(r))
}
