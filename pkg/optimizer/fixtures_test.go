package optimizer

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-transfers/pkg/logger"
	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

func mkPlayer(id int, pos types.Position, team int, price string, ev float64) types.Player {
	return types.Player{
		ID:          id,
		Name:        fmt.Sprintf("P%d", id),
		Position:    pos,
		Team:        team,
		Price:       decimal.RequireFromString(price),
		EV:          ev,
		TotalPoints: 40,
		Status:      types.StatusAvailable,
	}
}

func intPtr(v int) *int { return &v }

// testSquad is a valid 15-player squad: ids 1-2 GK, 3-7 DEF, 8-12 MID,
// 13-15 FWD, spread over teams 1-8 with at most two per team.
func testSquad() []types.Player {
	squad := make([]types.Player, 0, 15)
	for id := 1; id <= 15; id++ {
		team := (id-1)%8 + 1
		switch {
		case id <= 2:
			squad = append(squad, mkPlayer(id, types.PositionGK, team, "4.5", 3.0))
		case id <= 7:
			squad = append(squad, mkPlayer(id, types.PositionDEF, team, "5.0", 3.5))
		case id <= 12:
			squad = append(squad, mkPlayer(id, types.PositionMID, team, "7.0", 5.0))
		default:
			squad = append(squad, mkPlayer(id, types.PositionFWD, team, "8.0", 6.0))
		}
	}
	return squad
}

// testPool is a mixed candidate pool. Team 1 already has two squad players
// (ids 1 and 9), so only one of the strong team-1 midfielders fits.
func testPool() []types.Player {
	return []types.Player{
		mkPlayer(101, types.PositionGK, 9, "4.5", 3.2),
		mkPlayer(102, types.PositionGK, 10, "5.0", 3.6),
		mkPlayer(103, types.PositionDEF, 1, "5.5", 4.5),
		mkPlayer(104, types.PositionDEF, 9, "4.5", 3.0),
		mkPlayer(105, types.PositionDEF, 2, "6.0", 5.0),
		mkPlayer(106, types.PositionMID, 1, "8.0", 7.5),
		mkPlayer(107, types.PositionMID, 1, "7.5", 7.0),
		mkPlayer(108, types.PositionMID, 10, "6.5", 5.5),
		mkPlayer(109, types.PositionMID, 3, "12.0", 9.0),
		mkPlayer(110, types.PositionFWD, 9, "7.5", 6.5),
		mkPlayer(111, types.PositionFWD, 4, "11.0", 8.5),
		mkPlayer(112, types.PositionFWD, 10, "6.0", 4.0),
	}
}

func replacePlayer(squad []types.Player, p types.Player) []types.Player {
	out := append([]types.Player(nil), squad...)
	for i := range out {
		if out[i].ID == p.ID {
			out[i] = p
		}
	}
	return out
}

func quietLogger() *logrus.Entry {
	return logrus.NewEntry(logger.Discard())
}

func testEngine(policy Policy, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	engine, err := NewEngine(policy, opts...)
	if err != nil {
		panic(err)
	}
	return engine
}
