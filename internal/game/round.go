package game

import (
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"crashfair/internal/fairness"
)

type Phase string

const (
	PhasePending  Phase = "PENDING"
	PhaseBetting  Phase = "BETTING"
	PhaseLocked   Phase = "LOCKED"
	PhaseRunning  Phase = "RUNNING"
	PhaseCrashed  Phase = "CRASHED"
	PhaseResolved Phase = "RESOLVED"
	PhaseSettled  Phase = "SETTLED"
	PhaseAborted  Phase = "ABORTED"
)

// RESOLVED is the reveal step of round-based games, which have no live phase.
var transitions = map[Phase][]Phase{
	PhasePending:  {PhaseBetting, PhaseAborted},
	PhaseBetting:  {PhaseLocked, PhaseAborted},
	PhaseLocked:   {PhaseRunning, PhaseResolved, PhaseAborted},
	PhaseRunning:  {PhaseCrashed, PhaseAborted},
	PhaseCrashed:  {PhaseSettled},
	PhaseResolved: {PhaseSettled},
}

func (p Phase) CanTransition(to Phase) bool {
	return slices.Contains(transitions[p], to)
}

func (p Phase) Terminal() bool {
	return p == PhaseSettled || p == PhaseAborted
}

// Sequence hands out monotonically increasing round ids shared by every engine.
type Sequence struct {
	n atomic.Int64
}

func NewSequence(start int64) *Sequence {
	s := &Sequence{}
	s.n.Store(start)
	return s
}

func (s *Sequence) Next() string {
	return strconv.FormatInt(s.n.Add(1), 10)
}

type Entry struct {
	BetID             string
	UserID            string
	Stake             decimal.Decimal
	AutoCashout       float64
	Choice            string
	TicketFrom        int64 // jackpot tickets [from, to)
	TicketTo          int64
	CashedOut         bool
	CashoutMultiplier float64
	Payout            decimal.Decimal
	PlacedAt          time.Time

	target float64 // auto cashout after the max profit cap, 0 when none
}

func (e *Entry) view() EntryView {
	return EntryView{
		BetID:             e.BetID,
		UserID:            e.UserID,
		Stake:             e.Stake,
		AutoCashout:       e.AutoCashout,
		Choice:            e.Choice,
		TicketFrom:        e.TicketFrom,
		TicketTo:          e.TicketTo,
		CashedOut:         e.CashedOut,
		CashoutMultiplier: e.CashoutMultiplier,
		Payout:            e.Payout,
	}
}

// Round is owned by exactly one engine goroutine; readers only ever see snapshots.
type Round struct {
	ID        string
	Game      GameType
	Phase     Phase
	SeedHash  string
	HouseEdge float64

	privateSeed string
	revealed    bool
	result      fairness.Outcome
	resultSet   bool

	PublicSeed       string
	PublicSeedSource string

	entries     []*Entry
	byUser      map[string]*Entry
	ticketCount int64

	Multiplier float64
	Flags      Flags

	CreatedAt  time.Time
	EndsAt     time.Time
	RunningAt  time.Time
	RevealedAt time.Time
	SettledAt  time.Time
}

func newRound(id string, game GameType, houseEdge float64) *Round {
	return &Round{
		ID:         id,
		Game:       game,
		Phase:      PhasePending,
		HouseEdge:  houseEdge,
		byUser:     make(map[string]*Entry),
		Multiplier: fairness.MIN_MULTIPLIER,
		CreatedAt:  time.Now(),
	}
}

func (r *Round) transition(to Phase) error {
	if !r.Phase.CanTransition(to) {
		return fmt.Errorf("%w: round %s %s -> %s", ErrInvalidPhaseTransition, r.ID, r.Phase, to)
	}
	r.Phase = to
	return nil
}

func (r *Round) addEntry(e *Entry) {
	r.entries = append(r.entries, e)
	r.byUser[e.UserID] = e
}

// setPublicSeed is write-once
func (r *Round) setPublicSeed(value, source string) {
	if r.PublicSeed != "" {
		return
	}
	r.PublicSeed = value
	r.PublicSeedSource = source
}

func (r *Round) setResult(out fairness.Outcome) {
	if r.resultSet {
		return
	}
	r.result = out
	r.resultSet = true
}

func (r *Round) reveal(seed string) {
	r.revealed = true
	r.privateSeed = seed
	r.RevealedAt = time.Now()
}

func (r *Round) proof() fairness.Proof {
	return fairness.Proof{
		Game:        r.Game,
		RoundID:     r.ID,
		ServerSeed:  r.privateSeed,
		SeedHash:    r.SeedHash,
		PublicSeed:  r.PublicSeed,
		HouseEdge:   r.HouseEdge,
		TicketCount: r.ticketCount,
	}
}

func (r *Round) entryViews() []EntryView {
	views := make([]EntryView, 0, len(r.entries))
	for _, e := range r.entries {
		views = append(views, e.view())
	}
	return views
}

func (r *Round) snapshot(event string) Snapshot {
	snap := Snapshot{
		Event:      event,
		RoundID:    r.ID,
		Game:       r.Game,
		Phase:      r.Phase,
		SeedHash:   r.SeedHash,
		EndsAt:     r.EndsAt,
		PublicSeed: r.PublicSeed,
		Entries:    r.entryViews(),
		Flags:      r.Flags,
	}
	if r.Game == GameTypeCrash {
		snap.CurrentMultiplier = r.Multiplier
	}
	if r.revealed {
		snap.PrivateSeed = r.privateSeed
		result := r.result
		snap.Result = &result
	}
	return snap
}

func (r *Round) summary() Summary {
	return Summary{
		RoundID:          r.ID,
		Game:             r.Game,
		SeedHash:         r.SeedHash,
		PrivateSeed:      r.privateSeed,
		PublicSeed:       r.PublicSeed,
		PublicSeedSource: r.PublicSeedSource,
		Result:           r.result,
		HouseEdge:        r.HouseEdge,
		TicketCount:      r.ticketCount,
		Entries:          r.entryViews(),
		Flags:            r.Flags,
		CreatedAt:        r.CreatedAt,
		RevealedAt:       r.RevealedAt,
		SettledAt:        r.SettledAt,
	}
}

func totalStake(entries []*Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Stake)
	}
	return total
}
