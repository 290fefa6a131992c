package auth

import "github.com/mohit83k/radius-aaa/internal/billing"

// minTimeout returns the smaller of two timeouts where a value <= 0 means
// unbounded.
func minTimeout(a, b int64) int64 {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// affordable is the prepaid-time bound; it is at least one second so an
// admitted session is never sent an unbounded timeout.
func affordable(balance, hourlyPrice int64) int64 {
	secs := billing.AffordableSeconds(balance, hourlyPrice)
	if secs == 0 {
		return 1
	}
	return secs
}
