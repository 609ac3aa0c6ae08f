// Package commitment owns the commit/reveal lifecycle of per-round server seeds.
package commitment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crashfair/internal/fairness"
	"crashfair/internal/logger"
)

var (
	ErrCommitmentNotFound = errors.New("commitment: not found")
	ErrAlreadyRevealed    = errors.New("commitment: already revealed")
	ErrRevealBeforeClose  = errors.New("commitment: reveal before betting closed")
	ErrDuplicateRound     = errors.New("commitment: round already committed")
)

const (
	journalBuffer  = 1024
	journalTimeout = 5 * time.Second
	revealedToKeep = 4096
)

type state int

const (
	stateOpen state = iota
	stateSealed
	stateRevealed
)

// Record is one entry of the append-only commitment log. PrivateSeed is empty
// on the commit entry and set on the reveal entry.
type Record struct {
	RoundID     string    `json:"round_id"`
	Game        string    `json:"game"`
	SeedHash    string    `json:"seed_hash"`
	PrivateSeed string    `json:"private_seed,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
	RevealedAt  time.Time `json:"revealed_at,omitempty"`
}

// Store persists the commitment log. Implementations must never update or delete.
type Store interface {
	AppendCommitment(ctx context.Context, rec Record) error
	AppendReveal(ctx context.Context, rec Record) error
}

type Commitment struct {
	Seed string
	Hash string
}

type entry struct {
	rec   Record
	seed  string
	state state
}

type journalOp struct {
	reveal bool
	rec    Record
}

// Manager hands out commitments and reveals them. Store writes go through an ordered
// journal goroutine so slow persistence never stalls a round.
type Manager struct {
	mu       sync.Mutex
	entries  map[string]*entry
	revealed []string

	newSeed func() (string, error)
	store   Store
	journal chan journalOp
	done    chan struct{}
	log     *logger.Logger
}

type Option func(*Manager)

// WithSeedSource replaces crypto/rand seeds, tests use it to pin values
func WithSeedSource(fn func() (string, error)) Option {
	return func(m *Manager) { m.newSeed = fn }
}

func NewManager(store Store, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		entries: make(map[string]*entry),
		newSeed: fairness.GenerateSeed,
		store:   store,
		journal: make(chan journalOp, journalBuffer),
		done:    make(chan struct{}),
		log:     log.With("commitment"),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.runJournal()
	return m
}

// Open draws a fresh seed for the round and returns it with its commitment hash.
// Failure means the entropy pool is exhausted and the round must not start.
func (m *Manager) Open(game, roundID string) (Commitment, error) {
	seed, err := m.newSeed()
	if err != nil {
		return Commitment{}, fmt.Errorf("open commitment for round %s: %w", roundID, err)
	}
	hash := fairness.HashCommitment(seed)

	m.mu.Lock()
	if _, exists := m.entries[roundID]; exists {
		m.mu.Unlock()
		return Commitment{}, fmt.Errorf("%w: %s", ErrDuplicateRound, roundID)
	}
	rec := Record{RoundID: roundID, Game: game, SeedHash: hash, CommittedAt: time.Now()}
	m.entries[roundID] = &entry{rec: rec, seed: seed, state: stateOpen}
	m.mu.Unlock()

	m.enqueue(journalOp{rec: rec})
	return Commitment{Seed: seed, Hash: hash}, nil
}

// Seal marks the betting window of a round as closed; only sealed rounds can be revealed.
func (m *Manager) Seal(roundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[roundID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCommitmentNotFound, roundID)
	}
	if e.state == stateRevealed {
		return fmt.Errorf("%w: %s", ErrAlreadyRevealed, roundID)
	}
	e.state = stateSealed
	return nil
}

// Reveal releases the seed of a sealed round and appends it to the log.
func (m *Manager) Reveal(roundID string) (string, error) {
	m.mu.Lock()
	e, ok := m.entries[roundID]
	switch {
	case !ok:
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrCommitmentNotFound, roundID)
	case e.state == stateOpen:
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrRevealBeforeClose, roundID)
	case e.state == stateRevealed:
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrAlreadyRevealed, roundID)
	}

	e.state = stateRevealed
	e.rec.PrivateSeed = e.seed
	e.rec.RevealedAt = time.Now()
	rec := e.rec
	m.trackRevealed(roundID)
	m.mu.Unlock()

	m.enqueue(journalOp{reveal: true, rec: rec})
	return rec.PrivateSeed, nil
}

// Lookup returns the public view of a commitment; the seed only once revealed.
func (m *Manager) Lookup(roundID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[roundID]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// Shutdown drains pending journal writes.
func (m *Manager) Shutdown() {
	close(m.journal)
	<-m.done
}

// trackRevealed bounds memory; the store keeps the full history. Caller holds mu.
func (m *Manager) trackRevealed(roundID string) {
	m.revealed = append(m.revealed, roundID)
	if len(m.revealed) > revealedToKeep {
		drop := m.revealed[0]
		m.revealed = m.revealed[1:]
		delete(m.entries, drop)
	}
}

func (m *Manager) enqueue(op journalOp) {
	if m.store == nil {
		return
	}
	select {
	case m.journal <- op:
	default:
		m.log.Error().Str("round_id", op.rec.RoundID).Bool("reveal", op.reveal).
			Msg("[COMMIT] journal full, record not persisted")
	}
}

func (m *Manager) runJournal() {
	defer close(m.done)
	for op := range m.journal {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		var err error
		if op.reveal {
			err = m.store.AppendReveal(ctx, op.rec)
		} else {
			err = m.store.AppendCommitment(ctx, op.rec)
		}
		cancel()
		if err != nil {
			m.log.Error().Err(err).Str("round_id", op.rec.RoundID).Bool("reveal", op.reveal).
				Msg("[COMMIT] failed to persist record")
		}
	}
}
