package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/fpl-transfers/internal/milp"
	"github.com/stitts-dev/fpl-transfers/pkg/logger"
	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

// ErrInvalidRequest wraps input contract violations
var ErrInvalidRequest = errors.New("invalid optimization request")

// Request is one optimization call. The caller must not mutate the player
// slices while Optimize is running.
type Request struct {
	CurrentSquad  []types.Player  `json:"current_squad"`
	CandidatePool []types.Player  `json:"candidate_pool"`
	Bank          decimal.Decimal `json:"bank"`
	FreeTransfers int             `json:"free_transfers"`
	MaxTransfers  int             `json:"max_transfers"`
	// ExcludedIDs is merged with the policy exclusion list for this call
	ExcludedIDs []int `json:"excluded_ids,omitempty"`
}

// Engine generates and ranks transfer scenarios. It holds no per-call state
// and is safe for concurrent use as long as its PriceSource is.
type Engine struct {
	policy Policy
	prices PriceSource
	logger *logrus.Entry
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the base log entry
func WithLogger(entry *logrus.Entry) Option {
	return func(e *Engine) { e.logger = entry }
}

// WithPriceSource sets where authoritative prices come from at validation
func WithPriceSource(ps PriceSource) Option {
	return func(e *Engine) { e.prices = ps }
}

// NewEngine validates the policy and returns an engine
func NewEngine(policy Policy, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		policy: policy,
		prices: suppliedPrices{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.WithService("transfer-optimizer")
	}
	return e, nil
}

// Policy returns the engine's policy
func (e *Engine) Policy() Policy { return e.policy }

type solveJob struct {
	strategy     types.Strategy
	numTransfers int
	forcedOut    []int
}

type jobResult struct {
	scenario types.TransferScenario
	attempt  types.SolveAttempt
}

// requestState is the read-only data shared by every solve of one call
type requestState struct {
	req       Request
	excluded  map[int]struct{}
	numForced int
	validator *scenarioValidator
	log       *logrus.Entry
}

// Optimize runs every scenario solve for req and returns the ranked list.
// Individual solve failures never fail the call. If ctx is cancelled, no
// further solves start and the scenarios finished so far are ranked and
// returned.
func (e *Engine) Optimize(ctx context.Context, req Request) (*types.OptimizationResult, error) {
	start := time.Now()
	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	optimizationID := uuid.New().String()
	log := logger.WithOptimizationContext(e.logger, optimizationID, req.FreeTransfers, req.MaxTransfers)

	excluded := e.policy.excludedSet(req.ExcludedIDs)
	for _, pl := range req.CurrentSquad {
		if _, ok := excluded[pl.ID]; ok {
			log.WithField("player_id", pl.ID).Warn("Squad player is on the exclusion list; exclusions only apply to purchases")
		}
	}

	forced := e.policy.DetectForcedExits(req.CurrentSquad)
	forcedIDs := playerIDs(forced)
	for _, pl := range forced {
		log.WithFields(logrus.Fields{
			"player_id": pl.ID,
			"player":    pl.DisplayName(),
			"reason":    e.policy.ForcedExitReason(pl),
		}).Debug("Forced exit detected")
	}

	log.WithFields(logrus.Fields{
		"squad_size":   len(req.CurrentSquad),
		"pool_size":    len(req.CandidatePool),
		"bank":         req.Bank.String(),
		"forced_exits": len(forced),
		"excluded":     len(excluded),
	}).Info("Starting transfer optimization")

	state := &requestState{
		req:       req,
		excluded:  excluded,
		numForced: len(forced),
		validator: e.newValidator(req, excluded),
		log:       log,
	}

	jobs := e.planJobs(forcedIDs, req.MaxTransfers)
	results := make([]*jobResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(e.policy.Workers)
	cancelled := false
	for i, job := range jobs {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		i, job := i, job
		g.Go(func() error {
			res := e.runJob(ctx, state, job)
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	if cancelled {
		log.WithError(ctx.Err()).Warn("Optimization cancelled, returning partial results")
	}

	result := &types.OptimizationResult{
		OptimizationID: optimizationID,
		Forced: types.ForcedSummary{
			NumForcedTransfers: len(forced),
			ForcedPlayers:      forced,
		},
		Attempts: make([]types.SolveAttempt, 0, len(jobs)),
	}

	forcedFixAccepted := false
	for _, res := range results {
		if res != nil && res.attempt.Accepted && res.scenario.Strategy == types.StrategyFixForced {
			forcedFixAccepted = true
		}
	}

	accepted := make([]types.TransferScenario, 0, len(jobs))
	for _, res := range results {
		if res == nil {
			continue
		}
		if forcedFixAccepted && res.attempt.Accepted &&
			res.scenario.Strategy == types.StrategyOptimize && res.scenario.NumTransfers == state.numForced {
			res.attempt.Accepted = false
			res.attempt.Reason = "duplicates the forced fix transfer count"
		}
		result.Attempts = append(result.Attempts, res.attempt)
		if res.attempt.Accepted {
			accepted = append(accepted, res.scenario)
		}
	}

	result.Scenarios = RankScenarios(accepted, e.policy.HitCost)
	result.OptimizationTimeMs = time.Since(start).Milliseconds()

	log.WithFields(logrus.Fields{
		"solves":       len(result.Attempts),
		"accepted":     len(accepted),
		"returned":     len(result.Scenarios),
		"duration_ms":  result.OptimizationTimeMs,
		"forced_exits": len(forced),
	}).Info("Transfer optimization completed")

	return result, nil
}

// planJobs lists the solves in generation order: the forced fix, forced
// fix plus upgrades, then free-form counts.
func (e *Engine) planJobs(forcedIDs []int, maxTransfers int) []solveJob {
	var jobs []solveJob
	nForced := len(forcedIDs)
	if nForced > 0 {
		jobs = append(jobs, solveJob{types.StrategyFixForced, nForced, forcedIDs})
		for k := 1; k <= maxTransfers-nForced; k++ {
			jobs = append(jobs, solveJob{types.StrategyFixPlusUpgrade, nForced + k, forcedIDs})
		}
	}
	limit := maxTransfers
	if e.policy.OptimizeTransferCap < limit {
		limit = e.policy.OptimizeTransferCap
	}
	for tx := 1; tx <= limit; tx++ {
		jobs = append(jobs, solveJob{types.StrategyOptimize, tx, nil})
	}
	return jobs
}

func (e *Engine) acceptanceThreshold(strategy types.Strategy) float64 {
	if strategy == types.StrategyFixForced {
		return e.policy.ForcedAcceptanceFloor
	}
	return e.policy.MinGain
}

// runJob builds, solves, extracts and validates one scenario. Every failure
// becomes the infeasible sentinel.
func (e *Engine) runJob(ctx context.Context, state *requestState, job solveJob) jobResult {
	log := logger.WithScenarioContext(state.log, string(job.strategy), job.numTransfers)
	attempt := types.SolveAttempt{Strategy: job.strategy, NumTransfers: job.numTransfers}
	reject := func(status, reason string) jobResult {
		attempt.Status = status
		attempt.Reason = reason
		return jobResult{
			scenario: infeasibleScenario(job.strategy, job.numTransfers, state.req.FreeTransfers, e.policy.HitCost),
			attempt:  attempt,
		}
	}

	tm, err := e.policy.BuildModel(ModelInput{
		Squad:         state.req.CurrentSquad,
		Pool:          state.req.CandidatePool,
		Bank:          state.req.Bank,
		FreeTransfers: state.req.FreeTransfers,
		NumTransfers:  job.numTransfers,
		ForcedOut:     job.forcedOut,
		Excluded:      state.excluded,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to build transfer model")
		return reject(milp.StatusInfeasible.String(), err.Error())
	}

	// In-flight solves are bounded by their own budget, not the request.
	detached := context.WithoutCancel(ctx)
	solveCtx, cancel := context.WithTimeout(detached, e.policy.SolveTimeout)
	defer cancel()
	sol := milp.Solve(solveCtx, tm.Model, milp.Options{NodeLimit: e.policy.NodeLimit})
	attempt.Nodes = sol.Stats.Nodes
	attempt.Duration = sol.Stats.Duration

	log.WithFields(logrus.Fields{
		"status":           sol.Status.String(),
		"nodes":            sol.Stats.Nodes,
		"iterations":       sol.Stats.Iterations,
		"numeric_failures": sol.Stats.NumericFailures,
		"candidates":       len(tm.Candidates),
		"reduced_vars":     sol.Stats.ReducedVars,
		"duration_ms":      sol.Stats.Duration.Milliseconds(),
	}).Debug("Solve finished")

	if sol.Status != milp.StatusOptimal {
		return reject(sol.Status.String(), "no optimal assignment")
	}

	out, in := tm.Extract(sol.Values)
	sc := e.policy.newScenario(job.strategy, job.numTransfers, state.req.FreeTransfers, out, in)
	if err := state.validator.validate(detached, &sc, job.forcedOut); err != nil {
		entry := log.WithError(err).WithFields(logrus.Fields{
			"players_out": sc.PlayersOut,
			"players_in":  sc.PlayersIn,
		})
		if errors.Is(err, ErrExcludedLeak) {
			entry.Error("Excluded player reached solver output, scenario discarded")
		} else {
			entry.Warn("Scenario failed validation, treating as infeasible")
		}
		return reject(milp.StatusInfeasible.String(), err.Error())
	}

	sc.Description = describeScenario(sc, state.numForced)
	sc.Priority = e.policy.priorityFor(sc)

	attempt.Status = sol.Status.String()
	if threshold := e.acceptanceThreshold(job.strategy); sc.NetEVGainAdjusted < threshold {
		attempt.Reason = fmt.Sprintf("adjusted gain %.2f below threshold %.2f", sc.NetEVGainAdjusted, threshold)
	} else {
		attempt.Accepted = true
	}
	return jobResult{scenario: sc, attempt: attempt}
}

func (e *Engine) newValidator(req Request, excluded map[int]struct{}) *scenarioValidator {
	return &scenarioValidator{
		rules:    e.policy.Rules,
		sale:     e.policy.SaleValue,
		prices:   e.prices,
		squad:    req.CurrentSquad,
		squadIDs: types.IndexByID(req.CurrentSquad),
		poolIDs:  types.IndexByID(req.CandidatePool),
		excluded: excluded,
		bank:     req.Bank,
	}
}

func (e *Engine) validateRequest(req Request) error {
	switch {
	case req.FreeTransfers < 0:
		return fmt.Errorf("%w: free transfers %d is negative", ErrInvalidRequest, req.FreeTransfers)
	case req.MaxTransfers < 0:
		return fmt.Errorf("%w: max transfers %d is negative", ErrInvalidRequest, req.MaxTransfers)
	case req.Bank.IsNegative():
		return fmt.Errorf("%w: bank %s is negative", ErrInvalidRequest, req.Bank)
	}

	if err := e.policy.Rules.ValidateSquad(req.CurrentSquad); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	squadIDs := types.IndexByID(req.CurrentSquad)
	seen := make(map[int]bool, len(req.CandidatePool))
	for _, pl := range req.CandidatePool {
		if _, ok := squadIDs[pl.ID]; ok {
			return fmt.Errorf("%w: candidate %d is already in the squad", ErrInvalidRequest, pl.ID)
		}
		if seen[pl.ID] {
			return fmt.Errorf("%w: candidate %d appears twice", ErrInvalidRequest, pl.ID)
		}
		seen[pl.ID] = true
		if !pl.Position.Valid() {
			return fmt.Errorf("%w: candidate %d has unknown position %q", ErrInvalidRequest, pl.ID, pl.Position)
		}
		if pl.Price.IsNegative() {
			return fmt.Errorf("%w: candidate %d has negative price", ErrInvalidRequest, pl.ID)
		}
	}
	return nil
}
