package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stitts-dev/fpl-transfers/internal/milp"
	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

// ModelInput describes one transfer-count model to build
type ModelInput struct {
	Squad         []types.Player
	Pool          []types.Player
	Bank          decimal.Decimal
	FreeTransfers int
	NumTransfers  int
	ForcedOut     []int
	Excluded      map[int]struct{}
}

// TransferModel is a built model plus the bookkeeping needed to read a
// solution back into players.
type TransferModel struct {
	Model        *milp.Model
	NumTransfers int
	PenaltyHits  int
	Squad        []types.Player
	Candidates   []types.Player
	ForcedOut    []int

	inFinal map[int]int
	out     map[int]int
	in      map[int]int
}

// PenaltyHits is the number of transfers beyond the free allowance
func PenaltyHits(numTransfers, freeTransfers int) int {
	if hits := numTransfers - freeTransfers; hits > 0 {
		return hits
	}
	return 0
}

// normalizedPoints maps season points onto [0, 1] for the tiebreak term
func (p Policy) normalizedPoints(totalPoints int) float64 {
	return math.Min(math.Max(float64(totalPoints)/p.PointsScale, 0), 1)
}

// objectiveWeight is a player's contribution to the objective when owned
func (p Policy) objectiveWeight(player types.Player) float64 {
	return player.EV + p.TiebreakWeight*p.normalizedPoints(player.TotalPoints)
}

// BuildModel builds the binary program for exactly in.NumTransfers swaps.
// Excluded and unusable candidates are removed before any variable exists.
func (p Policy) BuildModel(in ModelInput) (*TransferModel, error) {
	if in.NumTransfers < 0 {
		return nil, fmt.Errorf("num transfers %d is negative", in.NumTransfers)
	}
	squadIDs := make(map[int]bool, len(in.Squad))
	for _, pl := range in.Squad {
		squadIDs[pl.ID] = true
	}
	for _, id := range in.ForcedOut {
		if !squadIDs[id] {
			return nil, fmt.Errorf("forced exit %d is not in the squad", id)
		}
	}

	tm := &TransferModel{
		Model:        milp.NewModel(),
		NumTransfers: in.NumTransfers,
		PenaltyHits:  PenaltyHits(in.NumTransfers, in.FreeTransfers),
		Squad:        in.Squad,
		Candidates:   p.reducePool(in, squadIDs),
		ForcedOut:    in.ForcedOut,
		inFinal:      make(map[int]int),
		out:          make(map[int]int),
		in:           make(map[int]int),
	}
	m := tm.Model

	for _, pl := range in.Squad {
		tm.inFinal[pl.ID] = m.AddBinary(fmt.Sprintf("in_final[%d]", pl.ID))
		tm.out[pl.ID] = m.AddBinary(fmt.Sprintf("out[%d]", pl.ID))
	}
	for _, pl := range tm.Candidates {
		tm.inFinal[pl.ID] = m.AddBinary(fmt.Sprintf("in_final[%d]", pl.ID))
		tm.in[pl.ID] = m.AddBinary(fmt.Sprintf("in[%d]", pl.ID))
	}
	everyone := append(append([]types.Player{}, in.Squad...), tm.Candidates...)

	// Linking
	for _, pl := range in.Squad {
		m.AddConstraint(fmt.Sprintf("link[%d]", pl.ID), []milp.Term{
			{Var: tm.inFinal[pl.ID], Coeff: 1},
			{Var: tm.out[pl.ID], Coeff: 1},
		}, milp.Equal, 1)
	}
	for _, pl := range tm.Candidates {
		m.AddConstraint(fmt.Sprintf("link[%d]", pl.ID), []milp.Term{
			{Var: tm.inFinal[pl.ID], Coeff: 1},
			{Var: tm.in[pl.ID], Coeff: -1},
		}, milp.Equal, 0)
	}

	// Forced exits
	for _, id := range in.ForcedOut {
		m.AddConstraint(fmt.Sprintf("forced[%d]", id), []milp.Term{{Var: tm.out[id], Coeff: 1}}, milp.Equal, 1)
	}

	// Squad size
	m.AddConstraint("squad_size", tm.inFinalTerms(everyone, nil), milp.Equal, float64(p.Rules.SquadSize))

	// Transfer count
	outTerms := make([]milp.Term, 0, len(in.Squad))
	for _, pl := range in.Squad {
		outTerms = append(outTerms, milp.Term{Var: tm.out[pl.ID], Coeff: 1})
	}
	inTerms := make([]milp.Term, 0, len(tm.Candidates))
	for _, pl := range tm.Candidates {
		inTerms = append(inTerms, milp.Term{Var: tm.in[pl.ID], Coeff: 1})
	}
	m.AddConstraint("count_out", outTerms, milp.Equal, float64(in.NumTransfers))
	m.AddConstraint("count_in", inTerms, milp.Equal, float64(in.NumTransfers))

	// Budget: cost of arrivals <= bank + sale value of departures
	budget := make([]milp.Term, 0, len(in.Squad)+len(tm.Candidates))
	for _, pl := range tm.Candidates {
		budget = append(budget, milp.Term{Var: tm.in[pl.ID], Coeff: pl.Price.InexactFloat64()})
	}
	for _, pl := range in.Squad {
		budget = append(budget, milp.Term{Var: tm.out[pl.ID], Coeff: -p.SaleValue.SaleValue(pl).InexactFloat64()})
	}
	m.AddConstraint("budget", budget, milp.LessEqual, in.Bank.InexactFloat64())

	// Position quotas and like-for-like swaps
	for _, pos := range types.AllPositions {
		pos := pos
		atPos := func(pl types.Player) bool { return pl.Position == pos }
		m.AddConstraint("quota["+string(pos)+"]", tm.inFinalTerms(everyone, atPos), milp.Equal, float64(p.Rules.PositionQuota[pos]))

		var matched []milp.Term
		for _, pl := range in.Squad {
			if atPos(pl) {
				matched = append(matched, milp.Term{Var: tm.out[pl.ID], Coeff: 1})
			}
		}
		for _, pl := range tm.Candidates {
			if atPos(pl) {
				matched = append(matched, milp.Term{Var: tm.in[pl.ID], Coeff: -1})
			}
		}
		m.AddConstraint("matched["+string(pos)+"]", matched, milp.Equal, 0)
	}

	// Team cap
	for _, team := range teamsOf(everyone) {
		team := team
		onTeam := func(pl types.Player) bool { return pl.Team == team }
		m.AddConstraint(fmt.Sprintf("team_cap[%d]", team), tm.inFinalTerms(everyone, onTeam), milp.LessEqual, float64(p.Rules.MaxPerTeam))
	}

	objective := make([]milp.Term, 0, len(everyone))
	for _, pl := range everyone {
		objective = append(objective, milp.Term{Var: tm.inFinal[pl.ID], Coeff: p.objectiveWeight(pl)})
	}
	m.SetObjective(objective, -float64(tm.PenaltyHits*p.HitCost), true)

	return tm, nil
}

func (tm *TransferModel) inFinalTerms(players []types.Player, keep func(types.Player) bool) []milp.Term {
	terms := make([]milp.Term, 0, len(players))
	for _, pl := range players {
		if keep == nil || keep(pl) {
			terms = append(terms, milp.Term{Var: tm.inFinal[pl.ID], Coeff: 1})
		}
	}
	return terms
}

func teamsOf(players []types.Player) []int {
	seen := make(map[int]bool)
	teams := make([]int, 0)
	for _, pl := range players {
		if !seen[pl.Team] {
			seen[pl.Team] = true
			teams = append(teams, pl.Team)
		}
	}
	sort.Ints(teams)
	return teams
}

// reducePool drops candidates that can never be part of an optimal answer
// for this transfer count, plus policy exclusions. Order is preserved.
func (p Policy) reducePool(in ModelInput, squadIDs map[int]bool) []types.Player {
	if in.NumTransfers == 0 {
		return nil
	}

	// Upper bound on spendable funds: the bank plus the n best sale values.
	sales := make([]decimal.Decimal, 0, len(in.Squad))
	for _, pl := range in.Squad {
		sales = append(sales, p.SaleValue.SaleValue(pl))
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].GreaterThan(sales[j]) })
	funds := in.Bank
	for i := 0; i < in.NumTransfers && i < len(sales); i++ {
		funds = funds.Add(sales[i])
	}

	usable := make([]types.Player, 0, len(in.Pool))
	for _, pl := range in.Pool {
		if _, excluded := in.Excluded[pl.ID]; excluded {
			continue
		}
		if squadIDs[pl.ID] || !pl.Position.Valid() {
			continue
		}
		if p.ExcludeUnavailableCandidates && p.IsForcedExit(pl) {
			continue
		}
		if pl.Price.GreaterThan(funds) {
			continue
		}
		usable = append(usable, pl)
	}

	usable = p.dropDominated(usable, in.NumTransfers)
	if p.MaxCandidatesPerPosition > 0 {
		usable = p.topPerPosition(usable, p.MaxCandidatesPerPosition)
	}
	return usable
}

// dropDominated removes candidates an optimal squad never needs. A
// dominator plays the same position, costs no more and is worth at least as
// much. A candidate goes when some dominator is always free to take its
// place: every squad holds at most slots-1 of them, and only teams already
// at the cap can block one. Dominators on the candidate's own team are never
// blocked.
func (p Policy) dropDominated(pool []types.Player, numTransfers int) []types.Player {
	dominates := func(a, b types.Player) bool {
		wa, wb := p.objectiveWeight(a), p.objectiveWeight(b)
		if a.Price.GreaterThan(b.Price) || wa < wb {
			return false
		}
		if a.Price.LessThan(b.Price) || wa > wb {
			return true
		}
		return a.ID < b.ID
	}

	byPos := make(map[types.Position][]types.Player)
	for _, pl := range pool {
		byPos[pl.Position] = append(byPos[pl.Position], pl)
	}
	fullTeams := p.Rules.SquadSize / p.Rules.MaxPerTeam

	keep := make(map[int]bool, len(pool))
	for pos, members := range byPos {
		slots := numTransfers
		if q := p.Rules.PositionQuota[pos]; q < slots {
			slots = q
		}
		sameTeamSlots := slots
		if p.Rules.MaxPerTeam < sameTeamSlots {
			sameTeamSlots = p.Rules.MaxPerTeam
		}

		for _, cand := range members {
			perTeam := make(map[int]int)
			for _, other := range members {
				if other.ID != cand.ID && dominates(other, cand) {
					perTeam[other.Team]++
				}
			}
			own := perTeam[cand.Team]
			if own >= sameTeamSlots {
				continue
			}
			others := make([]int, 0, len(perTeam))
			for team, n := range perTeam {
				if team != cand.Team {
					others = append(others, n)
				}
			}
			sort.Sort(sort.Reverse(sort.IntSlice(others)))
			free := own
			for i := fullTeams; i < len(others); i++ {
				free += others[i]
			}
			if free >= slots {
				continue
			}
			keep[cand.ID] = true
		}
	}

	out := make([]types.Player, 0, len(keep))
	for _, pl := range pool {
		if keep[pl.ID] {
			out = append(out, pl)
		}
	}
	return out
}

// topPerPosition keeps the limit most valuable candidates per position
func (p Policy) topPerPosition(pool []types.Player, limit int) []types.Player {
	byPos := make(map[types.Position][]types.Player)
	for _, pl := range pool {
		byPos[pl.Position] = append(byPos[pl.Position], pl)
	}
	keep := make(map[int]bool)
	for _, members := range byPos {
		sort.SliceStable(members, func(i, j int) bool {
			wi, wj := p.objectiveWeight(members[i]), p.objectiveWeight(members[j])
			if wi != wj {
				return wi > wj
			}
			return members[i].ID < members[j].ID
		})
		for i := 0; i < len(members) && i < limit; i++ {
			keep[members[i].ID] = true
		}
	}
	out := make([]types.Player, 0, len(keep))
	for _, pl := range pool {
		if keep[pl.ID] {
			out = append(out, pl)
		}
	}
	return out
}
