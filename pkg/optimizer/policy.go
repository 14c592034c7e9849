package optimizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

// Policy holds every tunable used by the engine. It is injected by the
// caller (usually from config) and never mutated by the engine.
type Policy struct {
	// Objective
	HitCost        int     `json:"hit_cost"`
	TiebreakWeight float64 `json:"tiebreak_weight"`
	PointsScale    float64 `json:"points_scale"`

	// Forced exits
	EVFloor                 float64 `json:"ev_floor"`
	DoubtfulChanceThreshold int     `json:"doubtful_chance_threshold"`

	// Scenario acceptance
	ForcedAcceptanceFloor float64 `json:"forced_acceptance_floor"`
	MinGain               float64 `json:"min_gain"`
	OptimizeTransferCap   int     `json:"optimize_transfer_cap"`
	HighPriorityGain      float64 `json:"high_priority_gain"`
	MediumPriorityGain    float64 `json:"medium_priority_gain"`

	// Candidate pool
	ExcludedIDs                  []int `json:"excluded_ids"`
	ExcludeUnavailableCandidates bool  `json:"exclude_unavailable_candidates"`
	MaxCandidatesPerPosition     int   `json:"max_candidates_per_position"`

	SaleValue SaleValuePolicy `json:"sale_value"`
	Rules     RosterRules     `json:"rules"`

	// Solver
	SolveTimeout time.Duration `json:"solve_timeout"`
	NodeLimit    int           `json:"node_limit"`
	Workers      int           `json:"workers"`
}

// DefaultPolicy returns the standard policy values
func DefaultPolicy() Policy {
	return Policy{
		HitCost:                      4,
		TiebreakWeight:               0.5,
		PointsScale:                  100,
		EVFloor:                      0.1,
		DoubtfulChanceThreshold:      50,
		ForcedAcceptanceFloor:        -10,
		MinGain:                      0.5,
		OptimizeTransferCap:          4,
		HighPriorityGain:             4,
		MediumPriorityGain:           2,
		ExcludeUnavailableCandidates: true,
		SaleValue:                    DefaultSaleValuePolicy(),
		Rules:                        DefaultRosterRules(),
		SolveTimeout:                 10 * time.Second,
		NodeLimit:                    20000,
		Workers:                      4,
	}
}

// ErrInvalidPolicy is returned for policy values the engine cannot use
var ErrInvalidPolicy = errors.New("invalid optimizer policy")

// Validate rejects policies that would make the search meaningless
func (p Policy) Validate() error {
	switch {
	case p.HitCost < 0:
		return fmt.Errorf("%w: hit cost %d is negative", ErrInvalidPolicy, p.HitCost)
	case p.TiebreakWeight < 0:
		return fmt.Errorf("%w: tiebreak weight %.3f is negative", ErrInvalidPolicy, p.TiebreakWeight)
	case p.PointsScale <= 0:
		return fmt.Errorf("%w: points scale must be positive", ErrInvalidPolicy)
	case p.OptimizeTransferCap < 0:
		return fmt.Errorf("%w: optimize transfer cap %d is negative", ErrInvalidPolicy, p.OptimizeTransferCap)
	case p.SolveTimeout <= 0:
		return fmt.Errorf("%w: solve timeout must be positive", ErrInvalidPolicy)
	case p.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidPolicy)
	case p.MaxCandidatesPerPosition < 0:
		return fmt.Errorf("%w: max candidates per position %d is negative", ErrInvalidPolicy, p.MaxCandidatesPerPosition)
	}
	if err := p.SaleValue.Validate(); err != nil {
		return err
	}
	return p.Rules.Validate()
}

func (p Policy) excludedSet(extra []int) map[int]struct{} {
	set := make(map[int]struct{}, len(p.ExcludedIDs)+len(extra))
	for _, id := range p.ExcludedIDs {
		set[id] = struct{}{}
	}
	for _, id := range extra {
		set[id] = struct{}{}
	}
	return set
}

// SaleValuePolicy estimates what a player would sell for when the actual
// selling price is unknown.
type SaleValuePolicy struct {
	FloorPrice  decimal.Decimal `json:"floor_price"`
	FixedBuffer decimal.Decimal `json:"fixed_buffer"`
	Fraction    decimal.Decimal `json:"fraction"`
}

// DefaultSaleValuePolicy assumes a loss of 0.1 or 5% of price, whichever is
// larger, never selling below 3.5.
func DefaultSaleValuePolicy() SaleValuePolicy {
	return SaleValuePolicy{
		FloorPrice:  decimal.RequireFromString("3.5"),
		FixedBuffer: decimal.RequireFromString("0.1"),
		Fraction:    decimal.RequireFromString("0.05"),
	}
}

// Validate checks the policy values are non-negative
func (s SaleValuePolicy) Validate() error {
	if s.FloorPrice.IsNegative() || s.FixedBuffer.IsNegative() || s.Fraction.IsNegative() {
		return fmt.Errorf("%w: sale value parameters must be non-negative", ErrInvalidPolicy)
	}
	if s.Fraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: sale value fraction %s exceeds 1", ErrInvalidPolicy, s.Fraction)
	}
	return nil
}

// SaleValue returns the selling price when known, otherwise
// max(floor, price - max(buffer, price*fraction)) capped at the price and
// rounded down to 0.1.
func (s SaleValuePolicy) SaleValue(p types.Player) decimal.Decimal {
	if p.SellingPrice.Valid {
		return p.SellingPrice.Decimal
	}
	buffer := decimal.Max(s.FixedBuffer, p.Price.Mul(s.Fraction))
	value := decimal.Max(s.FloorPrice, p.Price.Sub(buffer))
	return decimal.Min(value, p.Price).RoundFloor(1)
}
