package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

var (
	ErrExcludedLeak   = errors.New("excluded player selected")
	ErrUnknownPlayer  = errors.New("player not in supplied pools")
	ErrCountMismatch  = errors.New("transfer counts disagree")
	ErrBudgetExceeded = errors.New("transfers exceed budget")
	ErrForcedKept     = errors.New("forced exit kept in squad")
)

// budgetTolerance absorbs float noise from the solver's budget row
var budgetTolerance = decimal.New(1, -6)

// PriceSource returns the authoritative record for a player at validation
// time. ok is false when no current price can be established. It is called
// from several solves at once.
type PriceSource interface {
	Refresh(ctx context.Context, p types.Player) (types.Player, bool)
}

// suppliedPrices trusts the prices passed in with the request
type suppliedPrices struct{}

func (suppliedPrices) Refresh(_ context.Context, p types.Player) (types.Player, bool) { return p, true }

// Extract reads the selected departures and arrivals from a solved
// assignment, ordered by position then id.
func (tm *TransferModel) Extract(values []float64) (out, in []types.Player) {
	for _, pl := range tm.Squad {
		if values[tm.out[pl.ID]] > 0.5 {
			out = append(out, pl)
		}
	}
	for _, pl := range tm.Candidates {
		if values[tm.in[pl.ID]] > 0.5 {
			in = append(in, pl)
		}
	}
	sortPlayers(out)
	sortPlayers(in)
	return out, in
}

func positionRank(pos types.Position) int {
	for i, p := range types.AllPositions {
		if p == pos {
			return i
		}
	}
	return len(types.AllPositions)
}

func sortPlayers(players []types.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		ri, rj := positionRank(players[i].Position), positionRank(players[j].Position)
		if ri != rj {
			return ri < rj
		}
		return players[i].ID < players[j].ID
	})
}

// newScenario fills the arithmetic fields of a scenario from its swaps
func (p Policy) newScenario(strategy types.Strategy, numTransfers, freeTransfers int, out, in []types.Player) types.TransferScenario {
	gain := 0.0
	for _, pl := range in {
		gain += pl.EV
	}
	for _, pl := range out {
		gain -= pl.EV
	}
	hits := PenaltyHits(numTransfers, freeTransfers)
	penalty := hits * p.HitCost
	return types.TransferScenario{
		NumTransfers:      numTransfers,
		PlayersOut:        playerIDs(out),
		PlayersIn:         playerIDs(in),
		Transfers:         pairTransfers(out, in),
		NetEVGain:         gain,
		PenaltyHits:       hits,
		TransferPenalty:   penalty,
		NetEVGainAdjusted: gain - float64(penalty),
		Strategy:          strategy,
	}
}

// infeasibleScenario is the sentinel for a count with no valid answer. It
// ranks below everything and fails every acceptance threshold.
func infeasibleScenario(strategy types.Strategy, numTransfers, freeTransfers, hitCost int) types.TransferScenario {
	hits := PenaltyHits(numTransfers, freeTransfers)
	return types.TransferScenario{
		NumTransfers:      numTransfers,
		PlayersOut:        []int{},
		PlayersIn:         []int{},
		NetEVGain:         math.Inf(-1),
		PenaltyHits:       hits,
		TransferPenalty:   hits * hitCost,
		NetEVGainAdjusted: math.Inf(-1),
		Strategy:          strategy,
	}
}

// scenarioValidator re-checks a solved scenario against the raw inputs
type scenarioValidator struct {
	rules    RosterRules
	sale     SaleValuePolicy
	prices   PriceSource
	squad    []types.Player
	squadIDs map[int]types.Player
	poolIDs  map[int]types.Player
	excluded map[int]struct{}
	bank     decimal.Decimal
}

// validate checks exclusions, membership, counts, roster rules, forced
// exits and the budget with refreshed prices. On success it records cost,
// proceeds and the remaining bank on sc.
func (v *scenarioValidator) validate(ctx context.Context, sc *types.TransferScenario, forcedOut []int) error {
	if len(sc.PlayersOut) != sc.NumTransfers || len(sc.PlayersIn) != sc.NumTransfers {
		return fmt.Errorf("%w: %d out, %d in, expected %d", ErrCountMismatch, len(sc.PlayersOut), len(sc.PlayersIn), sc.NumTransfers)
	}

	leaving := make([]types.Player, 0, len(sc.PlayersOut))
	for _, id := range sc.PlayersOut {
		pl, ok := v.squadIDs[id]
		if !ok {
			return fmt.Errorf("%w: departing player %d", ErrUnknownPlayer, id)
		}
		leaving = append(leaving, pl)
	}
	arriving := make([]types.Player, 0, len(sc.PlayersIn))
	for _, id := range sc.PlayersIn {
		if _, excluded := v.excluded[id]; excluded {
			return fmt.Errorf("%w: %d", ErrExcludedLeak, id)
		}
		pl, ok := v.poolIDs[id]
		if !ok {
			return fmt.Errorf("%w: arriving player %d", ErrUnknownPlayer, id)
		}
		arriving = append(arriving, pl)
	}

	if err := v.rules.ValidateSquad(ApplyTransfers(v.squad, sc.PlayersOut, arriving)); err != nil {
		return err
	}

	outSet := make(map[int]bool, len(sc.PlayersOut))
	for _, id := range sc.PlayersOut {
		outSet[id] = true
	}
	for _, id := range forcedOut {
		if !outSet[id] {
			return fmt.Errorf("%w: %d", ErrForcedKept, id)
		}
	}

	cost := decimal.Zero
	for _, pl := range arriving {
		current, ok := v.prices.Refresh(ctx, pl)
		if !ok {
			return fmt.Errorf("%w: no current price for %d", ErrUnknownPlayer, pl.ID)
		}
		cost = cost.Add(current.Price)
	}
	proceeds := decimal.Zero
	for _, pl := range leaving {
		current, ok := v.prices.Refresh(ctx, pl)
		if !ok {
			return fmt.Errorf("%w: no current price for %d", ErrUnknownPlayer, pl.ID)
		}
		proceeds = proceeds.Add(v.sale.SaleValue(current))
	}
	funds := v.bank.Add(proceeds)
	if cost.Sub(funds).GreaterThan(budgetTolerance) {
		return fmt.Errorf("%w: cost %s > bank %s + proceeds %s", ErrBudgetExceeded, cost, v.bank, proceeds)
	}

	sc.Cost = cost
	sc.Proceeds = proceeds
	sc.BankAfter = funds.Sub(cost)
	return nil
}
