package models

import "time"

// SubCriterion is a scoreable sub-item of a criterion.
type SubCriterion struct {
	Name   string  `json:"name" yaml:"name"`
	Points float64 `json:"points" yaml:"points"`
}

// Criterion is one weighted line of a scorecard. The sum of all criterion
// weights on a scorecard must equal 100, and MaxScore must equal the sum of
// sub-criterion points.
type Criterion struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Weight      float64        `json:"weight" yaml:"weight"`
	MaxScore    float64        `json:"max_score" yaml:"max_score"`
	Required    bool           `json:"required,omitempty" yaml:"required"`
	AutoFail    bool           `json:"auto_fail,omitempty" yaml:"auto_fail"`
	SubCriteria []SubCriterion `json:"sub_criteria" yaml:"sub_criteria"`
}

// Scorecard is a weighted set of criteria used to evaluate an interaction.
type Scorecard struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	// PassingScore is the weighted 0..100 threshold.
	PassingScore     float64     `json:"passing_score" yaml:"passing_score"`
	Criteria         []Criterion `json:"criteria" yaml:"criteria"`
	AutoFailCriteria []string    `json:"auto_fail_criteria,omitempty" yaml:"auto_fail_criteria"`
}

// Criterion returns the criterion with the given id, or nil.
func (s *Scorecard) Criterion(id string) *Criterion {
	for i := range s.Criteria {
		if s.Criteria[i].ID == id {
			return &s.Criteria[i]
		}
	}
	return nil
}

// EvaluationStatus is the lifecycle state of an evaluation.
type EvaluationStatus string

// Evaluation statuses.
const (
	EvaluationStatusInProgress EvaluationStatus = "in_progress"
	EvaluationStatusCompleted  EvaluationStatus = "completed"
	EvaluationStatusAutoFailed EvaluationStatus = "auto_failed"
)

// EvalSubScore is a scored sub-criterion inside an evaluation.
type EvalSubScore struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
	Score  float64 `json:"score"`
	Notes  string  `json:"notes,omitempty"`
}

// EvalCriterion is an evaluation copy of a scorecard criterion with current
// scores attached.
type EvalCriterion struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Weight    float64        `json:"weight"`
	MaxScore  float64        `json:"max_score"`
	AutoFail  bool           `json:"auto_fail"`
	Score     float64        `json:"score"`
	Passed    bool           `json:"passed"`
	Scored    bool           `json:"scored"`
	Notes     string         `json:"notes,omitempty"`
	SubScores []EvalSubScore `json:"sub_scores"`
}

// Evaluation is a QA review of a completed interaction. Owned exclusively by
// the QA evaluator.
type Evaluation struct {
	ID            string `json:"id"`
	InteractionID string `json:"interaction_id"`
	AgentID       string `json:"agent_id"`
	CustomerID    string `json:"customer_id,omitempty"`
	Channel       string `json:"channel,omitempty"`
	ScorecardID   string `json:"scorecard_id"`
	QAAgentID     string `json:"qa_agent_id"`

	Status      EvaluationStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`

	Criteria []EvalCriterion `json:"criteria"`

	TotalScore     float64 `json:"total_score"`
	WeightedScore  float64 `json:"weighted_score"`
	Passed         bool    `json:"passed"`
	AutoFailed     bool    `json:"auto_failed"`
	AutoFailReason string  `json:"auto_fail_reason,omitempty"`

	CalibrationRequired bool `json:"calibration_required"`

	FinalNotes      string   `json:"final_notes,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Criterion returns the evaluation criterion with the given id, or nil.
func (e *Evaluation) Criterion(id string) *EvalCriterion {
	for i := range e.Criteria {
		if e.Criteria[i].ID == id {
			return &e.Criteria[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to readers.
func (e *Evaluation) Clone() *Evaluation {
	out := *e
	out.Criteria = make([]EvalCriterion, len(e.Criteria))
	for i, c := range e.Criteria {
		c.SubScores = append([]EvalSubScore(nil), c.SubScores...)
		out.Criteria[i] = c
	}
	out.Recommendations = append([]string(nil), e.Recommendations...)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
