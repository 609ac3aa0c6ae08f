package game

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"crashfair/internal/fairness"
)

type CrashConfig struct {
	BettingTime     time.Duration
	TickInterval    time.Duration
	InterRoundDelay time.Duration
	GrowthRate      float64
	MaxProfit       float64
	Limits
}

// CrashEngine runs an endless sequence of crash rounds on a single goroutine.
// Bets and cashouts are applied in arrival order; at every tick the queued
// cashouts are drained before the multiplier advances.
type CrashEngine struct {
	*driver
	cfg CrashConfig
}

func NewCrashEngine(cfg CrashConfig, deps Deps) *CrashEngine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.GrowthRate <= 0 {
		cfg.GrowthRate = 0.06
	}
	return &CrashEngine{
		driver: newDriver(GameTypeCrash, deps, cfg.Limits),
		cfg:    cfg,
	}
}

func (e *CrashEngine) Start(ctx context.Context) error {
	if e.started {
		return fmt.Errorf("%s engine already started", e.game)
	}
	e.started = true
	e.ctx = ctx
	go e.run()
	return nil
}

func (e *CrashEngine) Cashout(ctx context.Context, req CashoutRequest) (CashoutResponse, error) {
	reply, err := e.submit(ctx, command{cashout: &req})
	if err != nil {
		return CashoutResponse{}, err
	}
	return reply.cashout, reply.err
}

func (e *CrashEngine) run() {
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
			e.handle(cmd)
		case res := <-e.seeds:
			if e.applySeed(res) {
				e.launch()
			}
		case res := <-e.settled:
			e.finish(res, e.cfg.InterRoundDelay)
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *CrashEngine) handle(cmd command) {
	var reply commandReply
	switch {
	case cmd.bet != nil:
		reply.bet, reply.err = e.acceptBet(*cmd.bet, e.prepareEntry)
	case cmd.cashout != nil:
		reply.cashout, reply.err = e.cashout(*cmd.cashout)
	}
	cmd.reply <- reply
}

func (e *CrashEngine) tick() {
	now := time.Now()
	r := e.round
	switch {
	case e.readyForNextRound(now):
		e.openRound(e.cfg.BettingTime)
	case r == nil:
	case r.Phase == PhaseBetting && !now.Before(r.EndsAt):
		e.lock()
	case r.Phase == PhaseRunning:
		e.drain()
		e.advance()
	}
}

// drain applies every command queued before this tick.
func (e *CrashEngine) drain() {
	for n := len(e.commands); n > 0; n-- {
		select {
		case cmd := <-e.commands:
			e.handle(cmd)
		default:
			return
		}
	}
}

func (e *CrashEngine) prepareEntry(_ *Round, entry *Entry) error {
	if entry.AutoCashout != 0 && entry.AutoCashout <= fairness.MIN_MULTIPLIER {
		return ErrInvalidAutoCashout
	}
	entry.AutoCashout = math.Floor(entry.AutoCashout*100) / 100
	entry.target = entry.AutoCashout
	if e.cfg.MaxProfit > 0 {
		stake := entry.Stake.InexactFloat64()
		limit := math.Floor((1+e.cfg.MaxProfit/stake)*100) / 100
		if entry.target == 0 || limit < entry.target {
			entry.target = limit
		}
	}
	return nil
}

func (e *CrashEngine) launch() {
	r := e.round
	if err := r.transition(PhaseRunning); err != nil {
		e.abort(err)
		return
	}
	r.RunningAt = time.Now()
	r.Multiplier = fairness.MIN_MULTIPLIER

	e.log.Info().Str("round_id", r.ID).Str("public_seed", r.PublicSeed).
		Bool("degraded", r.Flags.EntropyDegraded).Int("bets", len(r.entries)).
		Msg("[ROUND] running")
	e.publish("round_running")
}

func (e *CrashEngine) advance() {
	r := e.round
	crashAt := r.result.Value
	mult := GrowthMultiplier(time.Since(r.RunningAt), e.cfg.GrowthRate)

	for _, entry := range r.entries {
		if entry.CashedOut || entry.target == 0 {
			continue
		}
		if entry.target < crashAt && entry.target <= mult {
			e.cashOutAt(entry, entry.target)
		}
	}

	if mult >= crashAt {
		r.Multiplier = crashAt
		e.crash()
		return
	}
	r.Multiplier = mult
	e.publish("tick")
}

func (e *CrashEngine) cashout(req CashoutRequest) (CashoutResponse, error) {
	r := e.round
	if r == nil || r.Phase != PhaseRunning {
		return CashoutResponse{}, ErrCashoutClosed
	}
	entry, ok := r.byUser[req.UserID]
	if !ok {
		return CashoutResponse{}, ErrNoEntry
	}
	if entry.CashedOut {
		return CashoutResponse{}, ErrAlreadyCashedOut
	}

	// a round that crashes at 1.00 runs at its crash point until the first tick
	if r.Multiplier >= r.result.Value {
		return CashoutResponse{}, ErrCashoutClosed
	}
	e.cashOutAt(entry, r.Multiplier)
	e.publish("cashout")

	return CashoutResponse{
		BetID:      entry.BetID,
		RoundID:    r.ID,
		Multiplier: entry.CashoutMultiplier,
		Payout:     entry.Payout,
	}, nil
}

func (e *CrashEngine) cashOutAt(entry *Entry, mult float64) {
	entry.CashedOut = true
	entry.CashoutMultiplier = mult
	entry.Payout = CrashPayout(entry.Stake, mult)
	e.log.Info().Str("round_id", e.round.ID).Str("user", entry.UserID).
		Float64("multiplier", mult).Str("payout", entry.Payout.String()).Msg("[CASHOUT]")
}

// crash reveals the seed; losers are settled with a zero amount.
func (e *CrashEngine) crash() {
	r := e.round
	if err := r.transition(PhaseCrashed); err != nil {
		e.abort(err)
		return
	}
	if err := e.reveal(); err != nil {
		e.abort(err)
		return
	}
	for _, entry := range r.entries {
		if !entry.CashedOut {
			entry.Payout = decimal.Zero
		}
	}

	e.log.Info().Str("round_id", r.ID).Float64("crash", r.result.Value).Msg("[ROUND] crashed")
	e.publish("crash")
	e.settle(payoutBatch(r))
}

// GrowthMultiplier is the live multiplier after elapsed time, truncated to cents.
func GrowthMultiplier(elapsed time.Duration, rate float64) float64 {
	m := math.Floor(100*math.Exp(rate*elapsed.Seconds())) / 100
	if m < fairness.MIN_MULTIPLIER {
		return fairness.MIN_MULTIPLIER
	}
	return m
}

func CrashPayout(stake decimal.Decimal, multiplier float64) decimal.Decimal {
	return stake.Mul(decimal.NewFromFloat(multiplier)).Truncate(2)
}
