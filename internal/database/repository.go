package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"crashfair/internal/commitment"
	"crashfair/internal/fairness"
	"crashfair/internal/game"
)

var ErrRoundNotFound = errors.New("round not found")

// Repository archives settled rounds and journals seed commitments.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertRound = `
INSERT INTO rounds (round_id, game, seed_hash, private_seed, public_seed, public_seed_source,
	result_value, winning_ticket, house_edge, ticket_count, flags, created_at, revealed_at, settled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (round_id) DO NOTHING`

const insertEntry = `
INSERT INTO round_entries (bet_id, round_id, position, user_id, stake, auto_cashout, choice,
	ticket_from, ticket_to, cashed_out, cashout_multiplier, payout)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12::numeric)
ON CONFLICT (bet_id) DO NOTHING`

func (r *Repository) SaveRound(ctx context.Context, s game.Summary) error {
	flags, err := json.Marshal(s.Flags)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertRound,
			s.RoundID, string(s.Game), s.SeedHash, s.PrivateSeed, s.PublicSeed, s.PublicSeedSource,
			s.Result.Value, s.Result.WinningTicket, s.HouseEdge, s.TicketCount, flags,
			s.CreatedAt, nullTime(s.RevealedAt), nullTime(s.SettledAt),
		); err != nil {
			return fmt.Errorf("insert round %s: %w", s.RoundID, err)
		}

		batch := &pgx.Batch{}
		for i, e := range s.Entries {
			batch.Queue(insertEntry,
				e.BetID, s.RoundID, i, e.UserID, e.Stake.String(), e.AutoCashout, e.Choice,
				e.TicketFrom, e.TicketTo, e.CashedOut, e.CashoutMultiplier, e.Payout.String())
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// UpdateFlags overwrites the flags of an archived round.
func (r *Repository) UpdateFlags(ctx context.Context, s game.Summary) error {
	flags, err := json.Marshal(s.Flags)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE rounds SET flags = $2 WHERE round_id = $1`, s.RoundID, flags)
	if err != nil {
		return fmt.Errorf("update flags of round %s: %w", s.RoundID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRoundNotFound, s.RoundID)
	}
	return nil
}

func (r *Repository) LoadRound(ctx context.Context, roundID string) (game.Summary, error) {
	var (
		s          game.Summary
		gameType   string
		flags      []byte
		revealedAt *time.Time
		settledAt  *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT round_id, game, seed_hash, private_seed, public_seed, public_seed_source,
			result_value, winning_ticket, house_edge, ticket_count, flags, created_at, revealed_at, settled_at
		FROM rounds WHERE round_id = $1`, roundID,
	).Scan(&s.RoundID, &gameType, &s.SeedHash, &s.PrivateSeed, &s.PublicSeed, &s.PublicSeedSource,
		&s.Result.Value, &s.Result.WinningTicket, &s.HouseEdge, &s.TicketCount, &flags,
		&s.CreatedAt, &revealedAt, &settledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Summary{}, ErrRoundNotFound
	}
	if err != nil {
		return game.Summary{}, err
	}
	s.Game = fairness.Game(gameType)
	if revealedAt != nil {
		s.RevealedAt = *revealedAt
	}
	if settledAt != nil {
		s.SettledAt = *settledAt
	}
	if err := json.Unmarshal(flags, &s.Flags); err != nil {
		return game.Summary{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT bet_id, user_id, stake::text, auto_cashout, choice, ticket_from, ticket_to,
			cashed_out, cashout_multiplier, payout::text
		FROM round_entries WHERE round_id = $1 ORDER BY position`, roundID)
	if err != nil {
		return game.Summary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e             game.EntryView
			stake, payout string
		)
		if err := rows.Scan(&e.BetID, &e.UserID, &stake, &e.AutoCashout, &e.Choice, &e.TicketFrom,
			&e.TicketTo, &e.CashedOut, &e.CashoutMultiplier, &payout); err != nil {
			return game.Summary{}, err
		}
		e.Stake = decimal.RequireFromString(stake)
		e.Payout = decimal.RequireFromString(payout)
		s.Entries = append(s.Entries, e)
	}
	return s, rows.Err()
}

func (r *Repository) AppendCommitment(ctx context.Context, rec commitment.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO seed_commitments (round_id, game, seed_hash, committed_at)
		VALUES ($1, $2, $3, $4)`,
		rec.RoundID, rec.Game, rec.SeedHash, rec.CommittedAt)
	return err
}

func (r *Repository) AppendReveal(ctx context.Context, rec commitment.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO seed_reveals (round_id, private_seed, revealed_at)
		VALUES ($1, $2, $3)`,
		rec.RoundID, rec.PrivateSeed, rec.RevealedAt)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
