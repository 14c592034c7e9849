package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy identifies how a scenario was generated
type Strategy string

const (
	StrategyFixForced      Strategy = "fix-forced"
	StrategyFixPlusUpgrade Strategy = "fix-plus-upgrade"
	StrategyOptimize       Strategy = "optimize"
)

// Priority is a display label derived from strategy and gain
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// TransferPair is one like-for-like swap used for display
type TransferPair struct {
	Out Player `json:"out"`
	In  Player `json:"in"`
}

// TransferScenario is one fully specified candidate transfer action
type TransferScenario struct {
	NumTransfers      int             `json:"num_transfers"`
	PlayersOut        []int           `json:"players_out"`
	PlayersIn         []int           `json:"players_in"`
	Transfers         []TransferPair  `json:"transfers"`
	NetEVGain         float64         `json:"net_ev_gain"`
	PenaltyHits       int             `json:"penalty_hits"`
	TransferPenalty   int             `json:"transfer_penalty"`
	NetEVGainAdjusted float64         `json:"net_ev_gain_adjusted"`
	Strategy          Strategy        `json:"strategy"`
	Priority          Priority        `json:"priority"`
	Description       string          `json:"description"`
	HitReason         *string         `json:"hit_reason"`
	Cost              decimal.Decimal `json:"cost"`
	Proceeds          decimal.Decimal `json:"proceeds"`
	BankAfter         decimal.Decimal `json:"bank_after"`
}

// ForcedSummary reports the mandatory exits found in the roster
type ForcedSummary struct {
	NumForcedTransfers int      `json:"num_forced_transfers"`
	ForcedPlayers      []Player `json:"forced_players"`
}

// SolveAttempt records the outcome of one model solve
type SolveAttempt struct {
	Strategy     Strategy      `json:"strategy"`
	NumTransfers int           `json:"num_transfers"`
	Status       string        `json:"status"`
	Nodes        int           `json:"nodes"`
	Duration     time.Duration `json:"duration"`
	Accepted     bool          `json:"accepted"`
	Reason       string        `json:"reason,omitempty"`
}

// OptimizationResult is the ranked output of one optimization call
type OptimizationResult struct {
	OptimizationID     string             `json:"optimization_id"`
	Scenarios          []TransferScenario `json:"scenarios"`
	Forced             ForcedSummary      `json:"forced"`
	Attempts           []SolveAttempt     `json:"attempts"`
	OptimizationTimeMs int64              `json:"optimization_time_ms"`
}
