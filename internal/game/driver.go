package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crashfair/internal/commitment"
	"crashfair/internal/entropy"
	"crashfair/internal/fairness"
	"crashfair/internal/logger"
	"crashfair/internal/settlement"
)

const (
	REQUEST_TIMEOUT  = 5 * time.Second
	COMMAND_BUFFER   = 1000
	WALLET_TIMEOUT   = 2 * time.Second
	ARCHIVE_TIMEOUT  = 5 * time.Second
	OPEN_RETRY_DELAY = time.Second
	SETTLE_TIMEOUT   = 30 * time.Second
)

type Commitments interface {
	Open(game, roundID string) (commitment.Commitment, error)
	Seal(roundID string) error
	Reveal(roundID string) (string, error)
}

type PublicSeeds interface {
	Fetch(ctx context.Context) (entropy.Seed, error)
}

type Wallet interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, reason string, meta map[string]string) (decimal.Decimal, error)
}

type Settler interface {
	Dispatch(ctx context.Context, batch []settlement.Settlement) settlement.Report
}

// Publisher must never block the round timeline.
type Publisher interface {
	Publish(snap Snapshot)
}

type Deps struct {
	Commitments Commitments
	Entropy     PublicSeeds
	Wallet      Wallet
	Settler     Settler
	Publisher   Publisher
	Archives    []Archive
	Sequence    *Sequence
	Log         *logger.Logger
}

type Limits struct {
	HouseEdge    float64
	MinBet       float64
	MaxBet       float64
	HistoryLimit int
}

type command struct {
	bet     *BetRequest
	cashout *CashoutRequest
	reply   chan commandReply
}

type commandReply struct {
	bet     BetResponse
	cashout CashoutResponse
	err     error
}

type seedResult struct {
	roundID string
	seed    entropy.Seed
	err     error
}

type settledResult struct {
	roundID string
	report  settlement.Report
}

// driver carries everything crash and round-based engines share. All fields below
// round are touched only by the engine goroutine.
type driver struct {
	game    GameType
	deps    Deps
	limits  Limits
	history *History
	log     *logger.Logger

	commands chan command
	seeds    chan seedResult
	settled  chan settledResult
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool

	ctx         context.Context
	round       *Round
	nextRoundAt time.Time
	settling    bool

	mu     sync.RWMutex
	latest *Snapshot

	// round id -> closed once SaveRound returned; only rounds with pending settlements
	archiving sync.Map

	bg sync.WaitGroup
}

func newDriver(game GameType, deps Deps, limits Limits) *driver {
	if deps.Sequence == nil {
		deps.Sequence = NewSequence(time.Now().UnixMilli())
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &driver{
		game:     game,
		deps:     deps,
		limits:   limits,
		history:  NewHistory(limits.HistoryLimit),
		log:      deps.Log.With(string(game)),
		commands: make(chan command, COMMAND_BUFFER),
		seeds:    make(chan seedResult, 4),
		settled:  make(chan settledResult, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *driver) GetType() GameType {
	return d.game
}

func (d *driver) History(limit int) []Summary {
	return d.history.List(limit)
}

func (d *driver) Restore(summaries []Summary) {
	d.history.Restore(summaries)
}

// ResolveSettlement applies a retry outcome. When the last pending participant of a
// round resolves, the archived copies get the final flags.
func (d *driver) ResolveSettlement(roundID, participantID string, failed bool) bool {
	s, ok := d.history.ResolveSettlement(roundID, participantID, failed)
	if !ok || s.Flags.SettlementPending {
		return ok
	}
	if saved, loaded := d.archiving.LoadAndDelete(roundID); loaded {
		select {
		case <-saved.(<-chan struct{}):
		case <-time.After(ARCHIVE_TIMEOUT):
		}
	}
	d.updateArchives(s)
	return true
}

// CurrentRound returns a copy of the latest published snapshot.
func (d *driver) CurrentRound() (Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.latest == nil {
		return Snapshot{}, false
	}
	snap := *d.latest
	snap.Entries = append([]EntryView(nil), d.latest.Entries...)
	if snap.Phase == PhaseBetting {
		if remaining := time.Until(snap.EndsAt).Seconds(); remaining > 0 {
			snap.TimeRemaining = remaining
		}
	}
	return snap, true
}

func (d *driver) PlaceBet(ctx context.Context, req BetRequest) (BetResponse, error) {
	reply, err := d.submit(ctx, command{bet: &req})
	if err != nil {
		return BetResponse{}, err
	}
	return reply.bet, reply.err
}

func (d *driver) Stop() error {
	d.stopOnce.Do(func() { close(d.stop) })
	if d.started {
		<-d.done
	}
	return nil
}

func (d *driver) submit(ctx context.Context, cmd command) (commandReply, error) {
	cmd.reply = make(chan commandReply, 1)

	select {
	case <-d.stop:
		return commandReply{}, ErrStopped
	default:
	}

	select {
	case d.commands <- cmd:
	default:
		return commandReply{}, ErrQueueFull
	}

	timer := time.NewTimer(REQUEST_TIMEOUT)
	defer timer.Stop()
	select {
	case reply := <-cmd.reply:
		return reply, nil
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	case <-timer.C:
		return commandReply{}, ErrTimeout
	case <-d.done:
		return commandReply{}, ErrStopped
	}
}

func (d *driver) publish(event string) {
	snap := d.round.snapshot(event)

	d.mu.Lock()
	d.latest = &snap
	d.mu.Unlock()

	if d.deps.Publisher != nil {
		d.deps.Publisher.Publish(snap)
	}
}

// readyForNextRound reports whether the previous round is fully closed out.
func (d *driver) readyForNextRound(now time.Time) bool {
	if d.settling || now.Before(d.nextRoundAt) {
		return false
	}
	return d.round == nil || d.round.Phase.Terminal()
}

// openRound commits to a fresh seed and opens betting. The commitment hash is
// published before the loop can accept a single bet.
func (d *driver) openRound(window time.Duration) bool {
	id := d.deps.Sequence.Next()
	c, err := d.deps.Commitments.Open(string(d.game), id)
	if err != nil {
		d.log.Error().Err(err).Str("round_id", id).Msg("[ROUND] cannot open commitment, round not created")
		d.nextRoundAt = time.Now().Add(OPEN_RETRY_DELAY)
		return false
	}

	r := newRound(id, d.game, d.limits.HouseEdge)
	r.SeedHash = c.Hash
	r.privateSeed = c.Seed
	d.round = r

	if err := r.transition(PhaseBetting); err != nil {
		d.abort(err)
		return false
	}
	r.EndsAt = time.Now().Add(window)

	d.log.Info().Str("round_id", id).Str("commitment", c.Hash[:16]+"...").Msg("[FAIR] round opened")
	d.publish("round_start")
	return true
}

func (d *driver) stake(req BetRequest) (decimal.Decimal, error) {
	if req.UserID == "" {
		return decimal.Zero, fmt.Errorf("%w: user id is required", ErrInvalidStake)
	}
	amount := decimal.NewFromFloat(req.Amount).Truncate(2)
	if req.Amount < d.limits.MinBet || req.Amount > d.limits.MaxBet || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bet must be between %.2f and %.2f", ErrInvalidStake, d.limits.MinBet, d.limits.MaxBet)
	}
	return amount, nil
}

// acceptBet runs on the engine goroutine, so the phase check and the insert are atomic
// with respect to the lock transition. The window closes at EndsAt even if the
// ticker has not locked the round yet.
func (d *driver) acceptBet(req BetRequest, prepare func(r *Round, e *Entry) error) (BetResponse, error) {
	r := d.round
	if r == nil || r.Phase != PhaseBetting || !time.Now().Before(r.EndsAt) {
		return BetResponse{}, ErrBettingClosed
	}
	if _, joined := r.byUser[req.UserID]; joined {
		return BetResponse{}, ErrAlreadyJoined
	}
	amount, err := d.stake(req)
	if err != nil {
		return BetResponse{}, err
	}

	e := &Entry{
		BetID:       uuid.NewString(),
		UserID:      req.UserID,
		Stake:       amount,
		AutoCashout: req.AutoCashout,
		Choice:      req.Choice,
		Payout:      decimal.Zero,
		PlacedAt:    time.Now(),
	}
	if prepare != nil {
		if err := prepare(r, e); err != nil {
			return BetResponse{}, err
		}
	}

	ctx, cancel := context.WithTimeout(d.ctx, WALLET_TIMEOUT)
	defer cancel()
	balance, err := d.deps.Wallet.Debit(ctx, req.UserID, amount, reasonFor(d.game, "bet"), map[string]string{
		"round_id": r.ID,
		"bet_id":   e.BetID,
	})
	if err != nil {
		return BetResponse{}, err
	}

	r.addEntry(e)
	if d.game == GameTypeJackpot {
		r.ticketCount = e.TicketTo
	}
	d.log.Info().Str("round_id", r.ID).Str("user", req.UserID).Str("stake", amount.String()).Msg("[BET] accepted")
	d.publish("bet_placed")

	return BetResponse{
		BetID:      e.BetID,
		RoundID:    r.ID,
		Stake:      amount,
		Balance:    balance,
		TicketFrom: e.TicketFrom,
		TicketTo:   e.TicketTo,
	}, nil
}

// lock closes betting, seals the commitment and starts the public seed fetch.
func (d *driver) lock() {
	r := d.round
	if err := r.transition(PhaseLocked); err != nil {
		d.abort(err)
		return
	}
	if err := d.deps.Commitments.Seal(r.ID); err != nil {
		d.abort(err)
		return
	}
	d.publish("round_locked")

	roundID := r.ID
	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		seed, err := d.deps.Entropy.Fetch(d.ctx)
		select {
		case d.seeds <- seedResult{roundID: roundID, seed: seed, err: err}:
		default:
		}
	}()
}

// applySeed stores the public seed and computes the result. It returns false when
// the round had to be aborted or the seed is stale.
func (d *driver) applySeed(res seedResult) bool {
	r := d.round
	if r == nil || r.ID != res.roundID || r.Phase != PhaseLocked {
		return false
	}
	if res.err != nil {
		d.abort(res.err)
		return false
	}
	r.setPublicSeed(res.seed.Value, res.seed.Source)
	r.Flags.EntropyDegraded = res.seed.Degraded

	out, err := fairness.Compute(r.proof())
	if err != nil {
		d.abort(err)
		return false
	}
	r.setResult(out)
	return true
}

func (d *driver) reveal() error {
	r := d.round
	seed, err := d.deps.Commitments.Reveal(r.ID)
	if err != nil {
		return err
	}
	if seed != r.privateSeed {
		return fmt.Errorf("%w: revealed seed differs from committed seed", ErrInvalidPhaseTransition)
	}
	r.reveal(seed)
	return nil
}

// settle hands the batch to the gateway off the engine goroutine.
func (d *driver) settle(batch []settlement.Settlement) {
	roundID := d.round.ID
	d.settling = true

	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		// settlement outlives the engine context so a shutdown still pays out
		ctx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), SETTLE_TIMEOUT)
		defer cancel()
		report := d.deps.Settler.Dispatch(ctx, batch)
		d.settled <- settledResult{roundID: roundID, report: report}
	}()
}

// finish archives the round once its settlements were dispatched.
func (d *driver) finish(res settledResult, interRoundDelay time.Duration) {
	d.settling = false
	r := d.round
	if r == nil || r.ID != res.roundID {
		return
	}

	if r.Phase != PhaseAborted {
		if err := r.transition(PhaseSettled); err != nil {
			d.log.Error().Err(err).Str("round_id", r.ID).Msg("[ROUND] settle transition refused")
			r.Flags.Invalid = true
			r.Phase = PhaseAborted
		}
	}
	r.SettledAt = time.Now()

	summary := r.summary()
	if !r.Flags.Aborted {
		if err := fairness.Verify(summary.Proof(), summary.Result); err != nil {
			d.log.Error().Err(err).Str("round_id", r.ID).Msg("[FAIR] round failed self-verification")
			r.Flags.Invalid = true
			summary.Flags.Invalid = true
		}
	}
	summary.Flags.SettlementPending = len(res.report.Pending) > 0
	saved := d.archive(summary)
	if summary.Flags.SettlementPending {
		d.archiving.Store(r.ID, saved)
	}
	d.history.Add(summary, res.report.Pending)

	d.publish("round_settled")
	d.nextRoundAt = time.Now().Add(interRoundDelay)

	d.log.Info().Str("round_id", r.ID).Float64("result", summary.Result.Value).
		Int("settled", len(res.report.Settled)).Int("pending", len(res.report.Pending)).
		Msg("[ROUND] settled")
}

// archive saves the summary to every archive in the background. The returned channel
// closes once all of them returned.
func (d *driver) archive(s Summary) <-chan struct{} {
	saved := make(chan struct{})
	var wg sync.WaitGroup
	for _, a := range d.deps.Archives {
		wg.Add(1)
		d.bg.Add(1)
		go func(a Archive) {
			defer d.bg.Done()
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), ARCHIVE_TIMEOUT)
			defer cancel()
			if err := a.SaveRound(ctx, s); err != nil {
				d.log.Error().Err(err).Str("round_id", s.RoundID).Msg("[ROUND] archive failed")
			}
		}(a)
	}
	go func() {
		wg.Wait()
		close(saved)
	}()
	return saved
}

func (d *driver) updateArchives(s Summary) {
	for _, a := range d.deps.Archives {
		ctx, cancel := context.WithTimeout(context.Background(), ARCHIVE_TIMEOUT)
		err := a.UpdateFlags(ctx, s)
		cancel()
		if err != nil {
			d.log.Error().Err(err).Str("round_id", s.RoundID).Msg("[ROUND] archive flag update failed")
		}
	}
}

// abort ends the round without a result: stakes are refunded, the seed is revealed for audit,
// and the round is kept in history flagged aborted.
func (d *driver) abort(cause error) {
	r := d.round
	if r == nil || r.Phase.Terminal() {
		return
	}
	d.log.Error().Err(cause).Str("round_id", r.ID).Str("phase", string(r.Phase)).Msg("[ROUND] aborting round")

	r.Flags.Aborted = true
	if errors.Is(cause, ErrInvalidPhaseTransition) {
		r.Flags.Invalid = true
	}
	r.Phase = PhaseAborted

	if !r.revealed {
		if err := d.deps.Commitments.Seal(r.ID); err != nil {
			d.log.Warn().Err(err).Str("round_id", r.ID).Msg("[FAIR] seal on abort failed")
		}
		seed, err := d.deps.Commitments.Reveal(r.ID)
		if err != nil {
			d.log.Error().Err(err).Str("round_id", r.ID).Msg("[FAIR] reveal on abort failed")
		} else {
			r.reveal(seed)
		}
	}
	if !r.resultSet {
		r.result = fairness.Outcome{WinningTicket: -1}
	}

	batch := make([]settlement.Settlement, 0, len(r.entries))
	for _, e := range r.entries {
		e.Payout = e.Stake
		batch = append(batch, settlementFor(r, e, reasonFor(r.Game, "refund")))
	}
	d.publish("round_aborted")
	d.settle(batch)
}

// shutdown runs on the engine goroutine after the loop exits.
func (d *driver) shutdown(interRoundDelay time.Duration) {
	if r := d.round; r != nil && !r.Phase.Terminal() && !d.settling {
		d.abort(ErrStopped)
	}
	d.bg.Wait()
	select {
	case res := <-d.settled:
		d.finish(res, interRoundDelay)
		d.bg.Wait()
	default:
	}
	d.log.Info().Msg("[ROUND] engine stopped")
}

func settlementFor(r *Round, e *Entry, reason string) settlement.Settlement {
	return settlement.Settlement{
		RoundID:       r.ID,
		ParticipantID: e.UserID,
		Amount:        e.Payout,
		Reason:        reason,
		Metadata: map[string]string{
			"game":   string(r.Game),
			"bet_id": e.BetID,
		},
	}
}

func payoutBatch(r *Round) []settlement.Settlement {
	batch := make([]settlement.Settlement, 0, len(r.entries))
	for _, e := range r.entries {
		reason := reasonFor(r.Game, "loss")
		if e.Payout.IsPositive() {
			reason = reasonFor(r.Game, "win")
		}
		batch = append(batch, settlementFor(r, e, reason))
	}
	return batch
}

func reasonFor(game GameType, kind string) string {
	label := map[GameType]string{
		GameTypeCrash:    "Crash",
		GameTypeCoinflip: "Coinflip",
		GameTypeJackpot:  "Jackpot",
	}[game]
	return label + " " + kind
}
