package types

// Platform identifies a trading venue.
type Platform string

const (
	PlatformKalshi     Platform = "kalshi"
	PlatformPolymarket Platform = "polymarket"
)

// Outcome names one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Side is one side of a price ladder.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)
