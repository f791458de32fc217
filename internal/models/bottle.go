package models

// BottleType is one tier of recyclable plastic bottle accepted at exchange
// posts. Every tier except jumbo converts at a bottles-per-ticket ratio;
// jumbo is a multiplier tier (each unit yields two tickets).
type BottleType string

const (
	BottleKecil  BottleType = "kecil"
	BottleSedang BottleType = "sedang"
	BottleBesar  BottleType = "besar"
	BottleJumbo  BottleType = "jumbo"
)

// DefaultBottleRate is the bottles-per-ticket ratio applied to bottle
// types not in the enumerated set.
const DefaultBottleRate = 10

// JumboTicketMultiplier is how many tickets each jumbo unit yields.
const JumboTicketMultiplier = 2

// bottleRates maps ratio tiers to bottles-per-ticket.
var bottleRates = map[BottleType]int{
	BottleKecil:  10,
	BottleSedang: 7,
	BottleBesar:  5,
}

// TicketsForBottles converts a bottle count into earned tickets.
// Ratio tiers floor-divide; the jumbo tier multiplies. Unknown tiers fall
// back to DefaultBottleRate.
func TicketsForBottles(bottleType BottleType, bottleCount int) int {
	if bottleCount <= 0 {
		return 0
	}
	if bottleType == BottleJumbo {
		return bottleCount * JumboTicketMultiplier
	}
	rate, ok := bottleRates[bottleType]
	if !ok {
		rate = DefaultBottleRate
	}
	return bottleCount / rate
}

// KnownBottleType reports whether the tier is in the enumerated set.
func KnownBottleType(bottleType BottleType) bool {
	if bottleType == BottleJumbo {
		return true
	}
	_, ok := bottleRates[bottleType]
	return ok
}
