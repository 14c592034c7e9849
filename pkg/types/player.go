package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Position is a squad position
type Position string

const (
	PositionGK  Position = "GK"
	PositionDEF Position = "DEF"
	PositionMID Position = "MID"
	PositionFWD Position = "FWD"
)

// AllPositions lists positions in display order
var AllPositions = []Position{PositionGK, PositionDEF, PositionMID, PositionFWD}

// ParsePosition accepts position names ("GK", "GKP", "DEF", ...) and FPL
// element types ("1".."4").
func ParsePosition(s string) (Position, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GK", "GKP", "1":
		return PositionGK, nil
	case "DEF", "2":
		return PositionDEF, nil
	case "MID", "3":
		return PositionMID, nil
	case "FWD", "4":
		return PositionFWD, nil
	}
	return "", fmt.Errorf("unknown position %q", s)
}

// UnmarshalJSON accepts anything ParsePosition does, quoted or as a bare
// element type number.
func (p *Position) UnmarshalJSON(data []byte) error {
	pos, err := ParsePosition(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*p = pos
	return nil
}

// Valid reports whether p is one of the four squad positions
func (p Position) Valid() bool {
	switch p {
	case PositionGK, PositionDEF, PositionMID, PositionFWD:
		return true
	}
	return false
}

// Status is the availability code published for a player
type Status string

const (
	StatusAvailable   Status = "a"
	StatusDoubtful    Status = "d"
	StatusInjured     Status = "i"
	StatusSuspended   Status = "s"
	StatusUnavailable Status = "u"
)

// String returns a readable status name
func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusDoubtful:
		return "doubtful"
	case StatusInjured:
		return "injured"
	case StatusSuspended:
		return "suspended"
	case StatusUnavailable:
		return "unavailable"
	}
	return string(s)
}

// Player is one player record as supplied by the data and prediction
// collaborators. Prices are in tenths of a currency unit precision.
type Player struct {
	ID              int                 `json:"id"`
	Name            string              `json:"name,omitempty"`
	Position        Position            `json:"position"`
	Team            int                 `json:"team"`
	Price           decimal.Decimal     `json:"price"`
	EV              float64             `json:"ev"`
	TotalPoints     int                 `json:"total_points"`
	Status          Status              `json:"status"`
	ChanceOfPlaying *int                `json:"chance_of_playing"`
	SellingPrice    decimal.NullDecimal `json:"selling_price"`
}

// DisplayName returns the name or a fallback built from the id
func (p Player) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return "#" + strconv.Itoa(p.ID)
}

// Chance returns chance of playing and whether it is known
func (p Player) Chance() (int, bool) {
	if p.ChanceOfPlaying == nil {
		return 0, false
	}
	return *p.ChanceOfPlaying, true
}

// IndexByID maps player ids to records
func IndexByID(players []Player) map[int]Player {
	index := make(map[int]Player, len(players))
	for _, p := range players {
		index[p.ID] = p
	}
	return index
}
