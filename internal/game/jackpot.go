package game

import (
	"github.com/shopspring/decimal"

	"crashfair/internal/fairness"
)

var ticketsPerUnit = decimal.NewFromInt(100)

type jackpot struct{}

// admit hands out one ticket per cent of stake as a contiguous range after the
// tickets already sold.
func (jackpot) admit(r *Round, e *Entry) error {
	tickets := e.Stake.Mul(ticketsPerUnit).IntPart()
	if tickets < 1 {
		return ErrInvalidStake
	}
	e.TicketFrom = r.ticketCount
	e.TicketTo = r.ticketCount + tickets
	return nil
}

func (jackpot) resolve(r *Round) {
	for _, e := range r.entries {
		e.Payout = decimal.Zero
	}
	if r.result.WinningTicket < 0 || len(r.entries) == 0 {
		r.Flags.Empty = true
		return
	}
	pot := totalStake(r.entries)
	for _, e := range r.entries {
		if r.result.WinningTicket >= e.TicketFrom && r.result.WinningTicket < e.TicketTo {
			e.Payout = JackpotPrize(pot, r.HouseEdge)
			return
		}
	}
}

// JackpotPrize is the pot minus the house edge, truncated to cents.
func JackpotPrize(pot decimal.Decimal, houseEdge float64) decimal.Decimal {
	keep := decimal.NewFromInt(int64(10000 - fairness.EdgeBasisPoints(houseEdge))).Div(decimal.NewFromInt(10000))
	return pot.Mul(keep).Truncate(2)
}
