// Package billing computes metered usage charges.
//
// All functions are pure. Money is integer minor units, flow is KB and time is
// seconds; fees are rounded up and then clamped to what the account holds.
package billing

import (
	"time"

	"github.com/mohit83k/radius-aaa/internal/model"
)

// Counters are the cumulative session counters reported by the NAS.
// Octet totals include gigawords.
type Counters struct {
	SessionTime int64
	InputTotal  int64
	OutputTotal int64
}

// Balances are the metered account fields.
type Balances struct {
	Balance    int64
	TimeLength int64
	FlowLength int64
}

// Outcome is the result of billing one accounting update.
type Outcome struct {
	Checkpoint    model.Checkpoint
	SecondsDelta  int64
	InputKBDelta  int64
	OutputKBDelta int64
	Fee           int64
	Balances      Balances
	Clamped       bool
	Exhausted     bool
	// CounterReset is set when a counter went backwards; its delta is zero
	// and the checkpoint restarts from the reported value.
	CounterReset bool
}

// Calculate bills the usage between checkpoint cp and counters c under
// product p.
func Calculate(p *model.Product, b Balances, cp model.Checkpoint, c Counters) Outcome {
	out := Outcome{
		Checkpoint: model.Checkpoint{
			BilledSeconds: c.SessionTime,
			InputTotal:    c.InputTotal,
			OutputTotal:   c.OutputTotal,
		},
		Balances: b,
	}

	var reset bool
	out.SecondsDelta, reset = delta(c.SessionTime, cp.BilledSeconds)
	out.CounterReset = out.CounterReset || reset
	out.InputKBDelta, reset = kbDelta(c.InputTotal, cp.InputTotal)
	out.CounterReset = out.CounterReset || reset
	out.OutputKBDelta, reset = kbDelta(c.OutputTotal, cp.OutputTotal)
	out.CounterReset = out.CounterReset || reset

	switch p.Policy {
	case model.PolicyPrepaidTime:
		fee := ceilMulDiv(out.SecondsDelta, p.Price, 3600)
		out.Fee, out.Balances.Balance, out.Clamped = charge(fee, b.Balance)
		out.Exhausted = out.Balances.Balance == 0
	case model.PolicyPrepaidFlow:
		fee := ceilMulDiv(out.OutputKBDelta, p.Price, 1024)
		out.Fee, out.Balances.Balance, out.Clamped = charge(fee, b.Balance)
		out.Exhausted = out.Balances.Balance == 0
	case model.PolicyBuyoutTime:
		out.Balances.TimeLength, out.Clamped = drawDown(b.TimeLength, out.SecondsDelta)
		out.Exhausted = out.Balances.TimeLength == 0
	case model.PolicyBuyoutFlow:
		out.Balances.FlowLength, out.Clamped = drawDown(b.FlowLength, out.OutputKBDelta)
		out.Exhausted = out.Balances.FlowLength == 0
	}
	return out
}

// Record builds the ledger entry for o.
func (o Outcome) Record(id string, key model.SessionKey, account string, policy model.Policy, at time.Time) model.BillingRecord {
	return model.BillingRecord{
		ID:            id,
		Key:           key,
		AccountNumber: account,
		Policy:        policy,
		SecondsDelta:  o.SecondsDelta,
		InputKBDelta:  o.InputKBDelta,
		OutputKBDelta: o.OutputKBDelta,
		Fee:           o.Fee,
		Balance:       o.Balances.Balance,
		TimeLength:    o.Balances.TimeLength,
		FlowLength:    o.Balances.FlowLength,
		Clamped:       o.Clamped,
		CreatedAt:     at,
	}
}

// AffordableSeconds is how long balance lasts at hourlyPrice, rounded down.
// A zero price means unlimited and returns -1.
func AffordableSeconds(balance, hourlyPrice int64) int64 {
	if hourlyPrice <= 0 {
		return -1
	}
	if balance <= 0 {
		return 0
	}
	return balance * 3600 / hourlyPrice
}

func delta(now, prev int64) (int64, bool) {
	if now < prev {
		return 0, true
	}
	return now - prev, false
}

// kbDelta converts both totals to whole KB before subtracting so sub-KB
// remainders carry over to the next update instead of being lost.
func kbDelta(nowOctets, prevOctets int64) (int64, bool) {
	return delta(nowOctets/1024, prevOctets/1024)
}

// ceilMulDiv returns ceil(a*b/d) for non-negative a, b and positive d.
func ceilMulDiv(a, b, d int64) int64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a*b + d - 1) / d
}

func charge(fee, balance int64) (actual, after int64, clamped bool) {
	if balance < 0 {
		balance = 0
	}
	actual = fee
	if actual > balance {
		actual = balance
		clamped = true
	}
	return actual, balance - actual, clamped
}

func drawDown(remaining, used int64) (after int64, clamped bool) {
	after = remaining - used
	if after < 0 {
		return 0, true
	}
	return after, false
}
