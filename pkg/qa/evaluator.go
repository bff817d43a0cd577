// Package qa scores completed interactions against weighted scorecards:
// per-criterion sub-scores, auto-fail rules, weighted totals, and calibration
// signals for drifting QA agents.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/directory"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/ident"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
)

// ErrNotAuthorized means the caller is not the evaluation's assigned QA
// agent.
var ErrNotAuthorized = errors.New("not the assigned qa agent")

// criterionPassRatio is the share of a criterion's max score required to
// pass it.
const criterionPassRatio = 0.8

// Store is the evaluation persistence the evaluator needs.
type Store interface {
	UpsertEvaluation(ctx context.Context, e *models.Evaluation) error
	GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error)
	ListEvaluations(ctx context.Context, qaAgentID string) ([]*models.Evaluation, error)
}

// qaStat is one QA agent's running score average.
type qaStat struct {
	count   int
	average float64
}

// Evaluator owns Evaluations exclusively: nothing else reads or writes them.
type Evaluator struct {
	store      Store
	scorecards *config.ScorecardRegistry
	agents     *directory.Directory
	publisher  *events.Publisher
	cfg        config.QAConfig

	mu      sync.Mutex
	qaStats map[string]*qaStat
}

// NewEvaluator creates an evaluator over the given scorecard registry.
func NewEvaluator(store Store, scorecards *config.ScorecardRegistry, agents *directory.Directory, publisher *events.Publisher, cfg config.QAConfig) *Evaluator {
	return &Evaluator{
		store:      store,
		scorecards: scorecards,
		agents:     agents,
		publisher:  publisher,
		cfg:        cfg,
		qaStats:    make(map[string]*qaStat),
	}
}

// CreateEvaluationParams identifies the interaction under review.
type CreateEvaluationParams struct {
	InteractionID string
	AgentID       string
	CustomerID    string
	Channel       string
	ScorecardID   string
	QAAgentID     string
}

// CreateEvaluation opens an in-progress evaluation with zeroed criterion
// copies instantiated from the scorecard.
func (e *Evaluator) CreateEvaluation(ctx context.Context, params CreateEvaluationParams) (*models.Evaluation, error) {
	if params.InteractionID == "" {
		return nil, services.NewValidationError("interaction_id", "required")
	}
	if params.AgentID == "" {
		return nil, services.NewValidationError("agent_id", "required")
	}
	if params.QAAgentID == "" {
		return nil, services.NewValidationError("qa_agent_id", "required")
	}
	card, ok := e.scorecards.Get(params.ScorecardID)
	if !ok {
		return nil, services.NewValidationError("scorecard_id", fmt.Sprintf("unknown scorecard %q", params.ScorecardID))
	}

	criteria := make([]models.EvalCriterion, 0, len(card.Criteria))
	for _, c := range card.Criteria {
		subs := make([]models.EvalSubScore, 0, len(c.SubCriteria))
		for _, sub := range c.SubCriteria {
			subs = append(subs, models.EvalSubScore{Name: sub.Name, Points: sub.Points})
		}
		criteria = append(criteria, models.EvalCriterion{
			ID:        c.ID,
			Name:      c.Name,
			Weight:    c.Weight,
			MaxScore:  c.MaxScore,
			AutoFail:  c.AutoFail,
			SubScores: subs,
		})
	}

	eval := &models.Evaluation{
		ID:            ident.New(ident.KindEvaluation),
		InteractionID: params.InteractionID,
		AgentID:       params.AgentID,
		CustomerID:    params.CustomerID,
		Channel:       params.Channel,
		ScorecardID:   card.ID,
		QAAgentID:     params.QAAgentID,
		Status:        models.EvaluationStatusInProgress,
		CreatedAt:     time.Now(),
		Criteria:      criteria,
	}

	if err := e.store.UpsertEvaluation(ctx, eval); err != nil {
		return nil, err
	}

	slog.Info("Evaluation created",
		"evaluation_id", eval.ID,
		"interaction_id", eval.InteractionID,
		"scorecard_id", eval.ScorecardID)

	e.publisher.EvaluationCreated(events.EvaluationCreatedPayload{
		BasePayload:  events.NewBasePayload(events.KindEvaluationCreated, params.InteractionID),
		EvaluationID: eval.ID,
		AgentID:      eval.AgentID,
		QAAgentID:    eval.QAAgentID,
		ScorecardID:  eval.ScorecardID,
	})

	return eval.Clone(), nil
}

// Get returns the evaluation.
func (e *Evaluator) Get(ctx context.Context, id string) (*models.Evaluation, error) {
	eval, err := e.store.GetEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	if eval == nil {
		return nil, services.ErrNotFound
	}
	return eval, nil
}

// List returns evaluations, optionally filtered by QA agent.
func (e *Evaluator) List(ctx context.Context, qaAgentID string) ([]*models.Evaluation, error) {
	return e.store.ListEvaluations(ctx, qaAgentID)
}

// ScoreCriterion records sub-scores for one criterion and recomputes the
// evaluation totals. subScores are positional against the criterion's
// sub-criteria. Only the assigned QA agent may score.
func (e *Evaluator) ScoreCriterion(ctx context.Context, evalID, qaAgentID, criterionID string, subScores []float64, notes string) (*models.Evaluation, error) {
	eval, err := e.Get(ctx, evalID)
	if err != nil {
		return nil, err
	}
	if eval.QAAgentID != qaAgentID {
		return nil, ErrNotAuthorized
	}
	if eval.Status == models.EvaluationStatusCompleted || eval.Status == models.EvaluationStatusAutoFailed {
		return nil, services.ErrConflict
	}

	crit := eval.Criterion(criterionID)
	if crit == nil {
		return nil, services.NewValidationError("criterion_id", fmt.Sprintf("unknown criterion %q", criterionID))
	}
	if len(subScores) != len(crit.SubScores) {
		return nil, services.NewValidationError("sub_scores",
			fmt.Sprintf("expected %d scores, got %d", len(crit.SubScores), len(subScores)))
	}
	for i, score := range subScores {
		if score < 0 || score > crit.SubScores[i].Points {
			return nil, services.NewValidationError("sub_scores",
				fmt.Sprintf("%s: score %.2f outside [0, %.2f]", crit.SubScores[i].Name, score, crit.SubScores[i].Points))
		}
	}

	total := 0.0
	for i, score := range subScores {
		crit.SubScores[i].Score = score
		total += score
	}
	crit.Score = total
	crit.Passed = total >= criterionPassRatio*crit.MaxScore
	crit.Scored = true
	crit.Notes = notes

	e.recomputeTotals(eval)

	if err := e.store.UpsertEvaluation(ctx, eval); err != nil {
		return nil, err
	}

	e.publisher.CriterionScored(events.CriterionScoredPayload{
		BasePayload:   events.NewBasePayload(events.KindCriterionScored, eval.InteractionID),
		EvaluationID:  eval.ID,
		CriterionID:   crit.ID,
		Score:         crit.Score,
		MaxScore:      crit.MaxScore,
		Passed:        crit.Passed,
		WeightedScore: eval.WeightedScore,
		AutoFailed:    eval.AutoFailed,
	})

	return eval.Clone(), nil
}

// Complete finalises the evaluation: every criterion must be scored. The QA
// agent's running average is updated and a calibration flag is raised when
// this score deviates from it beyond the configured delta.
func (e *Evaluator) Complete(ctx context.Context, evalID, qaAgentID, finalNotes string, recommendations []string) (*models.Evaluation, error) {
	eval, err := e.Get(ctx, evalID)
	if err != nil {
		return nil, err
	}
	if eval.QAAgentID != qaAgentID {
		return nil, ErrNotAuthorized
	}
	if eval.Status == models.EvaluationStatusCompleted || eval.Status == models.EvaluationStatusAutoFailed {
		return nil, services.ErrConflict
	}
	for _, crit := range eval.Criteria {
		if !crit.Scored {
			return nil, services.NewValidationError("criteria",
				fmt.Sprintf("criterion %q not scored", crit.ID))
		}
	}

	now := time.Now()
	eval.Status = models.EvaluationStatusCompleted
	if eval.AutoFailed {
		eval.Status = models.EvaluationStatusAutoFailed
	}
	eval.CompletedAt = &now
	eval.FinalNotes = finalNotes
	eval.Recommendations = recommendations

	average := e.foldScore(eval.QAAgentID, eval.WeightedScore)
	deviation := math.Abs(eval.WeightedScore - average)
	eval.CalibrationRequired = deviation > e.cfg.CalibrationDelta

	if err := e.store.UpsertEvaluation(ctx, eval); err != nil {
		return nil, err
	}

	if e.agents != nil {
		if err := e.agents.RecordQualityScore(eval.AgentID, eval.WeightedScore); err != nil && !errors.Is(err, services.ErrNotFound) {
			slog.Error("Failed to record quality score", "agent_id", eval.AgentID, "error", err)
		}
	}

	slog.Info("Evaluation completed",
		"evaluation_id", eval.ID,
		"weighted_score", eval.WeightedScore,
		"passed", eval.Passed,
		"auto_failed", eval.AutoFailed,
		"calibration_required", eval.CalibrationRequired)

	e.publisher.EvaluationCompleted(events.EvaluationCompletedPayload{
		BasePayload:   events.NewBasePayload(events.KindEvaluationCompleted, eval.InteractionID),
		EvaluationID:  eval.ID,
		AgentID:       eval.AgentID,
		QAAgentID:     eval.QAAgentID,
		WeightedScore: eval.WeightedScore,
		Passed:        eval.Passed,
		AutoFailed:    eval.AutoFailed,
	})
	if eval.CalibrationRequired {
		e.publisher.CalibrationRequired(events.CalibrationRequiredPayload{
			BasePayload:   events.NewBasePayload(events.KindCalibrationRequired, eval.InteractionID),
			EvaluationID:  eval.ID,
			QAAgentID:     eval.QAAgentID,
			WeightedScore: eval.WeightedScore,
			AverageScore:  average,
			Deviation:     deviation,
		})
	}

	return eval.Clone(), nil
}

// QAAverage returns a QA agent's running weighted-score average and the
// number of completed evaluations behind it.
func (e *Evaluator) QAAverage(qaAgentID string) (float64, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stat, ok := e.qaStats[qaAgentID]
	if !ok {
		return 0, 0
	}
	return stat.average, stat.count
}

// RecoverStats rebuilds the QA running averages from persisted completed
// evaluations. Called once at startup.
func (e *Evaluator) RecoverStats(ctx context.Context) error {
	evals, err := e.store.ListEvaluations(ctx, "")
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.qaStats = make(map[string]*qaStat)
	recovered := 0
	for _, eval := range evals {
		if eval.CompletedAt == nil {
			continue
		}
		stat := e.qaStats[eval.QAAgentID]
		if stat == nil {
			stat = &qaStat{}
			e.qaStats[eval.QAAgentID] = stat
		}
		stat.average = (stat.average*float64(stat.count) + eval.WeightedScore) / float64(stat.count+1)
		stat.count++
		recovered++
	}
	slog.Info("QA stats recovered", "evaluations", recovered, "qa_agents", len(e.qaStats))
	return nil
}

// foldScore updates the QA agent's running average and returns the new value.
func (e *Evaluator) foldScore(qaAgentID string, score float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	stat := e.qaStats[qaAgentID]
	if stat == nil {
		stat = &qaStat{}
		e.qaStats[qaAgentID] = stat
	}
	stat.average = (stat.average*float64(stat.count) + score) / float64(stat.count+1)
	stat.count++
	return stat.average
}

// recomputeTotals rebuilds the evaluation's aggregate fields from its
// criteria. The weighted score runs over every criterion; unscored ones
// contribute zero.
func (e *Evaluator) recomputeTotals(eval *models.Evaluation) {
	totalScore := 0.0
	weighted := 0.0
	weightSum := 0.0
	eval.AutoFailed = false
	eval.AutoFailReason = ""

	for _, crit := range eval.Criteria {
		weightSum += crit.Weight
		if crit.MaxScore > 0 {
			weighted += (crit.Score / crit.MaxScore) * crit.Weight
		}
		totalScore += crit.Score
		if crit.AutoFail && crit.Scored && !crit.Passed && !eval.AutoFailed {
			eval.AutoFailed = true
			eval.AutoFailReason = crit.Name
		}
	}

	eval.TotalScore = totalScore
	if weightSum > 0 {
		eval.WeightedScore = weighted / weightSum * 100
	}

	card, ok := e.scorecards.Get(eval.ScorecardID)
	passing := 0.0
	if ok {
		passing = card.PassingScore
	}
	if e.cfg.PassThreshold > 0 {
		passing = e.cfg.PassThreshold
	}
	eval.Passed = eval.WeightedScore >= passing && !eval.AutoFailed
}
