// Package aggregate combines subtask results into a single outcome.
// Every strategy degrades to an unsuccessful result on empty or uniformly
// failed input; aggregation itself never fails.
package aggregate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jfeld/taskforge/internal/logging"
	"github.com/jfeld/taskforge/pkg/models"
)

// Strategy selects how results are combined.
type Strategy string

const (
	// StrategyConcatenate joins successful outputs in order.
	StrategyConcatenate Strategy = "concatenate"
	// StrategyMerge combines outputs and scores consensus by success rate.
	StrategyMerge Strategy = "merge"
	// StrategyVote groups identical results and requires a majority share.
	StrategyVote Strategy = "vote"
	// StrategyBest returns the highest-scoring successful result.
	StrategyBest Strategy = "best"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyConcatenate, StrategyMerge, StrategyVote, StrategyBest:
		return true
	default:
		return false
	}
}

// StrategyFor derives the default strategy from an execution mode:
// sequential results concatenate, concurrent results merge with consensus.
func StrategyFor(mode models.ExecutionMode) Strategy {
	switch mode {
	case models.ModeParallel, models.ModeHybrid:
		return StrategyMerge
	default:
		return StrategyConcatenate
	}
}

const defaultThreshold = 0.5

// Aggregator applies aggregation strategies with a configured consensus
// threshold.
type Aggregator struct {
	threshold float64
	logger    *logging.DebugLogger
}

// New creates an Aggregator. A non-positive threshold falls back to 0.5.
func New(threshold float64, logger *logging.DebugLogger) *Aggregator {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Aggregator{threshold: threshold, logger: logger}
}

// Aggregate combines the results with the given strategy. The output is
// deterministic: aggregating the same slice twice yields identical output
// and consensus score. An unknown strategy falls back to concatenate.
func (a *Aggregator) Aggregate(results []*models.TaskResult, strategy Strategy) models.AggregationResult {
	if len(results) == 0 {
		return models.AggregationResult{
			Success: false,
			Errors:  []string{"no results to aggregate"},
		}
	}

	if !strategy.Valid() {
		a.logger.Log("[aggregate] unknown strategy %q, using concatenate", strategy)
		strategy = StrategyConcatenate
	}

	switch strategy {
	case StrategyMerge:
		return a.merge(results)
	case StrategyVote:
		return a.vote(results)
	case StrategyBest:
		return a.best(results)
	default:
		return a.concatenate(results)
	}
}

// concatenate joins successful outputs with blank lines and shallow-merges
// their data maps in input order. It succeeds if at least one subtask
// succeeded, or if nothing failed.
func (a *Aggregator) concatenate(results []*models.TaskResult) models.AggregationResult {
	combined := combine(results)
	// Failures are counted by result status, not by the Errors slice: a
	// failed result may carry an empty error string.
	combined.Success = successCount(results) > 0 || failureCount(results) == 0
	return combined
}

// merge is concatenate plus a consensus score: the fraction of successful
// subtasks. It succeeds when consensus meets the threshold or anything at
// all succeeded.
func (a *Aggregator) merge(results []*models.TaskResult) models.AggregationResult {
	combined := combine(results)
	successes := successCount(results)
	combined.ConsensusScore = float64(successes) / float64(len(results))
	combined.Success = combined.ConsensusScore >= a.threshold || successes > 0
	return combined
}

// vote groups results by identical output and data, and succeeds when the
// largest group's share of all results meets the threshold. The winning
// group's representative is the earliest member in input order; ties
// between groups break the same way.
func (a *Aggregator) vote(results []*models.TaskResult) models.AggregationResult {
	type group struct {
		count    int
		first    int
		exemplar *models.TaskResult
	}
	groups := make(map[string]*group)
	var order []string

	for i, res := range results {
		if !res.Success {
			continue
		}
		key := fingerprint(res)
		g, ok := groups[key]
		if !ok {
			g = &group{first: i, exemplar: res}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
	}

	out := models.AggregationResult{
		Errors:  collectErrors(results),
		Sources: results,
	}
	if len(groups) == 0 {
		out.Success = false
		return out
	}

	var winner *group
	for _, key := range order {
		g := groups[key]
		if winner == nil || g.count > winner.count {
			winner = g
		}
	}

	out.ConsensusScore = float64(winner.count) / float64(len(results))
	out.Success = out.ConsensusScore >= a.threshold
	out.Output = winner.exemplar.Output
	out.Data = winner.exemplar.Data
	return out
}

// best scores each successful result and returns the top scorer: having
// output is worth 1, structured data 2, a clean error field 1, plus a
// speed bonus favoring faster results. Ties keep the earliest result.
func (a *Aggregator) best(results []*models.TaskResult) models.AggregationResult {
	out := models.AggregationResult{
		Errors:  collectErrors(results),
		Sources: results,
	}

	var maxDuration time.Duration
	for _, res := range results {
		if res.Success && res.Duration > maxDuration {
			maxDuration = res.Duration
		}
	}

	var winner *models.TaskResult
	var winnerScore float64
	for _, res := range results {
		if !res.Success {
			continue
		}
		score := 0.0
		if res.Output != "" {
			score++
		}
		if len(res.Data) > 0 {
			score += 2
		}
		if res.Error == "" {
			score++
		}
		if maxDuration > 0 {
			score += 1 - float64(res.Duration)/float64(maxDuration)
		}
		if winner == nil || score > winnerScore {
			winner = res
			winnerScore = score
		}
	}

	if winner == nil {
		out.Success = false
		return out
	}
	out.Success = true
	out.Output = winner.Output
	out.Data = winner.Data
	return out
}

// combine is the shared concatenate/merge body: outputs joined by blank
// lines, data shallow-merged left to right, errors collected.
func combine(results []*models.TaskResult) models.AggregationResult {
	var outputs []string
	var data map[string]any

	for _, res := range results {
		if !res.Success {
			continue
		}
		if res.Output != "" {
			outputs = append(outputs, res.Output)
		}
		if len(res.Data) > 0 {
			if data == nil {
				data = make(map[string]any)
			}
			for k, v := range res.Data {
				data[k] = v
			}
		}
	}

	return models.AggregationResult{
		Output:  strings.Join(outputs, "\n\n"),
		Data:    data,
		Errors:  collectErrors(results),
		Sources: results,
	}
}

// fingerprint renders a result's output and data into a comparable key.
// json.Marshal sorts map keys, so equal data maps produce equal keys.
func fingerprint(res *models.TaskResult) string {
	data, err := json.Marshal(res.Data)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", res.Data))
	}
	return res.Output + "\x00" + string(data)
}

func successCount(results []*models.TaskResult) int {
	n := 0
	for _, res := range results {
		if res.Success {
			n++
		}
	}
	return n
}

func failureCount(results []*models.TaskResult) int {
	n := 0
	for _, res := range results {
		if !res.Success {
			n++
		}
	}
	return n
}

func collectErrors(results []*models.TaskResult) []string {
	var errs []string
	for _, res := range results {
		if !res.Success && res.Error != "" {
			errs = append(errs, res.Error)
		}
	}
	return errs
}
