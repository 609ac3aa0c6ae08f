package fairness

import (
	"errors"
	"fmt"
)

var (
	ErrSeedMismatch   = errors.New("fairness: seed does not match commitment")
	ErrResultMismatch = errors.New("fairness: recomputed result differs")
	ErrUnknownGame    = errors.New("fairness: unknown game")
)

// Proof is everything a third party needs to recompute a round.
type Proof struct {
	Game        Game    `json:"game"`
	RoundID     string  `json:"round_id"`
	ServerSeed  string  `json:"server_seed"`
	SeedHash    string  `json:"seed_hash"`
	PublicSeed  string  `json:"public_seed"`
	HouseEdge   float64 `json:"house_edge,omitempty"`
	TicketCount int64   `json:"ticket_count,omitempty"`
}

// Outcome is the game-specific result. Value is the crash multiplier, the coinflip
// value, or the jackpot module. WinningTicket is -1 outside jackpot and for empty pots.
type Outcome struct {
	Value         float64 `json:"value"`
	WinningTicket int64   `json:"winning_ticket"`
}

func Compute(p Proof) (Outcome, error) {
	switch p.Game {
	case GameCrash:
		return Outcome{
			Value:         CrashMultiplier(p.ServerSeed, p.PublicSeed, p.RoundID, p.HouseEdge),
			WinningTicket: -1,
		}, nil
	case GameCoinflip:
		return Outcome{
			Value:         CoinflipResult(p.ServerSeed, p.PublicSeed, p.RoundID),
			WinningTicket: -1,
		}, nil
	case GameJackpot:
		jp, err := JackpotResult(p.ServerSeed, p.PublicSeed, p.RoundID, p.TicketCount)
		if errors.Is(err, ErrNoTickets) {
			return Outcome{Value: jp.Module, WinningTicket: -1}, nil
		}
		return Outcome{Value: jp.Module, WinningTicket: jp.WinningTicket}, nil
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownGame, p.Game)
	}
}

// Verify checks the commitment and recomputes the outcome. Results are compared exactly.
func Verify(p Proof, claimed Outcome) error {
	if HashCommitment(p.ServerSeed) != p.SeedHash {
		return ErrSeedMismatch
	}
	got, err := Compute(p)
	if err != nil {
		return err
	}
	if got != claimed {
		return fmt.Errorf("%w: got %v/%d, claimed %v/%d",
			ErrResultMismatch, got.Value, got.WinningTicket, claimed.Value, claimed.WinningTicket)
	}
	return nil
}
