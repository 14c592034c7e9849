package optimizer

import (
	"fmt"

	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

// ForcedExitReason explains why p must leave the squad, or returns "" when
// p can stay. A player is forced out when injured, suspended or
// unavailable, when certain not to play, when doubtful below the chance
// threshold, or when the projection is at or below the EV floor.
func (p Policy) ForcedExitReason(player types.Player) string {
	switch player.Status {
	case types.StatusInjured, types.StatusSuspended, types.StatusUnavailable:
		return player.Status.String()
	}

	if chance, ok := player.Chance(); ok {
		if chance == 0 {
			return "0% chance of playing"
		}
		if player.Status == types.StatusDoubtful && chance < p.DoubtfulChanceThreshold {
			return fmt.Sprintf("doubtful (%d%% chance of playing)", chance)
		}
	}

	if player.EV <= p.EVFloor {
		return fmt.Sprintf("projected EV %.2f at or below floor", player.EV)
	}
	return ""
}

// IsForcedExit reports whether player must be removed this turn
func (p Policy) IsForcedExit(player types.Player) bool {
	return p.ForcedExitReason(player) != ""
}

// DetectForcedExits returns the squad players that must leave, in squad order
func (p Policy) DetectForcedExits(squad []types.Player) []types.Player {
	forced := make([]types.Player, 0)
	for _, player := range squad {
		if p.IsForcedExit(player) {
			forced = append(forced, player)
		}
	}
	return forced
}

func playerIDs(players []types.Player) []int {
	ids := make([]int, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}
