package optimizer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

// ErrInvalidSquad wraps every roster rule violation
var ErrInvalidSquad = errors.New("invalid squad")

// RosterRules holds the composition rules every squad must satisfy
type RosterRules struct {
	SquadSize     int                    `json:"squad_size"`
	PositionQuota map[types.Position]int `json:"position_quota"`
	MaxPerTeam    int                    `json:"max_per_team"`
}

// DefaultRosterRules returns 2 GK, 5 DEF, 5 MID, 3 FWD with at most three
// players from one team.
func DefaultRosterRules() RosterRules {
	return RosterRules{
		SquadSize: 15,
		PositionQuota: map[types.Position]int{
			types.PositionGK:  2,
			types.PositionDEF: 5,
			types.PositionMID: 5,
			types.PositionFWD: 3,
		},
		MaxPerTeam: 3,
	}
}

// Validate checks the rules are internally consistent
func (r RosterRules) Validate() error {
	total := 0
	for _, pos := range types.AllPositions {
		q, ok := r.PositionQuota[pos]
		if !ok || q < 0 {
			return fmt.Errorf("%w: missing or negative quota for %s", ErrInvalidPolicy, pos)
		}
		total += q
	}
	if total != r.SquadSize {
		return fmt.Errorf("%w: position quotas sum to %d, squad size is %d", ErrInvalidPolicy, total, r.SquadSize)
	}
	if r.MaxPerTeam <= 0 {
		return fmt.Errorf("%w: max per team must be positive", ErrInvalidPolicy)
	}
	return nil
}

// ValidateSquad performs comprehensive squad validation
func (r RosterRules) ValidateSquad(players []types.Player) error {
	if len(players) != r.SquadSize {
		return fmt.Errorf("%w: squad has %d players, need %d", ErrInvalidSquad, len(players), r.SquadSize)
	}

	if err := validateUnique(players); err != nil {
		return err
	}

	if err := r.validatePositions(players); err != nil {
		return err
	}

	return r.validateTeams(players)
}

func validateUnique(players []types.Player) error {
	seen := make(map[int]bool, len(players))
	for _, p := range players {
		if seen[p.ID] {
			return fmt.Errorf("%w: player %d appears twice", ErrInvalidSquad, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func (r RosterRules) validatePositions(players []types.Player) error {
	positionCounts := make(map[types.Position]int)
	for _, p := range players {
		if !p.Position.Valid() {
			return fmt.Errorf("%w: player %d has unknown position %q", ErrInvalidSquad, p.ID, p.Position)
		}
		positionCounts[p.Position]++
	}

	for _, pos := range types.AllPositions {
		if got, want := positionCounts[pos], r.PositionQuota[pos]; got != want {
			return fmt.Errorf("%w: position %s requires %d players, got %d", ErrInvalidSquad, pos, want, got)
		}
	}
	return nil
}

func (r RosterRules) validateTeams(players []types.Player) error {
	teamCounts := make(map[int]int)
	for _, p := range players {
		teamCounts[p.Team]++
	}

	teams := make([]int, 0, len(teamCounts))
	for team := range teamCounts {
		teams = append(teams, team)
	}
	sort.Ints(teams)

	for _, team := range teams {
		if count := teamCounts[team]; count > r.MaxPerTeam {
			return fmt.Errorf("%w: too many players from team %d: %d > %d", ErrInvalidSquad, team, count, r.MaxPerTeam)
		}
	}
	return nil
}

// ApplyTransfers returns squad minus out plus in, preserving squad order
// with incoming players appended.
func ApplyTransfers(squad []types.Player, out []int, in []types.Player) []types.Player {
	leaving := make(map[int]bool, len(out))
	for _, id := range out {
		leaving[id] = true
	}
	result := make([]types.Player, 0, len(squad)+len(in))
	for _, p := range squad {
		if !leaving[p.ID] {
			result = append(result, p)
		}
	}
	return append(result, in...)
}
