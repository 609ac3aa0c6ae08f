package game

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ChoiceHeads = "heads"
	ChoiceTails = "tails"

	// values in [HEADS_BELOW, TAILS_FROM) land on the edge and go to the house
	HEADS_BELOW = 29.5
	TAILS_FROM  = 30.5
)

var coinflipPayout = decimal.NewFromInt(2)

type coinflip struct{}

func (coinflip) admit(_ *Round, e *Entry) error {
	choice := strings.ToLower(strings.TrimSpace(e.Choice))
	if choice != ChoiceHeads && choice != ChoiceTails {
		return ErrInvalidChoice
	}
	e.Choice = choice
	return nil
}

func (coinflip) resolve(r *Round) {
	side := CoinflipSide(r.result.Value)
	if len(r.entries) == 0 {
		r.Flags.Empty = true
	}
	for _, e := range r.entries {
		e.Payout = decimal.Zero
		if side != "" && e.Choice == side {
			e.Payout = e.Stake.Mul(coinflipPayout)
		}
	}
}

// CoinflipSide maps a value in [0, 60) to the winning side, or "" for the house band.
func CoinflipSide(value float64) string {
	switch {
	case value < HEADS_BELOW:
		return ChoiceHeads
	case value >= TAILS_FROM:
		return ChoiceTails
	default:
		return ""
	}
}
