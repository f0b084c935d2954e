package domain

import "time"

// StrategyKind classifies how an opportunity was detected.
type StrategyKind string

const (
	StrategyCrossVenue  StrategyKind = "cross_venue"
	StrategyTriangular  StrategyKind = "triangular"
	StrategyStatistical StrategyKind = "statistical"
)

// OpportunityStatus is the lifecycle state of a detected opportunity.
type OpportunityStatus string

const (
	OppActive    OpportunityStatus = "active"
	OppExecuting OpportunityStatus = "executing"
	OppExecuted  OpportunityStatus = "executed"
	OppExpired   OpportunityStatus = "expired"
	OppCancelled OpportunityStatus = "cancelled"
)

// LegAction is the direction of one execution leg.
type LegAction string

const (
	LegBuy  LegAction = "buy"
	LegSell LegAction = "sell"
)

// ExecutionLeg is one planned order within an opportunity.
type ExecutionLeg struct {
	Venue  string
	Pair   string
	Action LegAction
	Price  float64
	Volume float64
}

// Notional returns the leg's gross value before fees.
func (l ExecutionLeg) Notional() float64 {
	return l.Price * l.Volume
}

// ArbitrageOpportunity is one detected, executable price discrepancy.
type ArbitrageOpportunity struct {
	ID              string
	Kind            StrategyKind
	Pairs           []string
	Venues          []string
	Legs            []ExecutionLeg
	ExpectedProfit  float64
	ProfitPct       float64 // fraction of deployed capital, not percent
	RequiredCapital float64
	Volume          float64
	RiskScore       float64 // 0 safest .. 1 riskiest
	Confidence      float64
	Status          OpportunityStatus
	DetectedAt      time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the opportunity's validity window has passed.
func (o ArbitrageOpportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// SortKey selects the ordering of opportunity listings.
type SortKey string

const (
	SortByProfitPct      SortKey = "profit_pct"
	SortByExpectedProfit SortKey = "expected_profit"
	SortByRiskScore      SortKey = "risk_score"
	SortByConfidence     SortKey = "confidence"
)
