package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
)

func (s RunStatus) Terminal() bool {
	return s != RunRunning
}

type WorkflowState string

const (
	StateStart           WorkflowState = "start"
	StateNotify          WorkflowState = "notify"
	StateCheckHealth     WorkflowState = "check_health"
	StateHealthyNoAction WorkflowState = "healthy_no_action"
	StateFailover        WorkflowState = "failover"
	StateWaitStabilize   WorkflowState = "wait_stabilize"
	StateValidate        WorkflowState = "validate"
	StateSucceeded       WorkflowState = "succeeded"
	StateFailed          WorkflowState = "failed"
	StateTimedOut        WorkflowState = "timed_out"
)

// StepRecord is one audit entry in a run's history.
type StepRecord struct {
	State      WorkflowState `json:"state"`
	EnteredAt  time.Time     `json:"entered_at"`
	Detail     string        `json:"detail,omitempty"`
}

// FailoverWorkflowRun is the durable record of one failover attempt. Exactly
// one run per target may be running at a time; terminal runs are immutable and
// a fresh trigger always allocates a new run ID.
type FailoverWorkflowRun struct {
	RunID         string        `json:"run_id" db:"run_id"`
	Target        string        `json:"target" db:"target"`
	TriggerReason string        `json:"trigger_reason" db:"trigger_reason"`
	Metadata      StringMap     `json:"metadata,omitempty" db:"metadata"`
	StartTime     time.Time     `json:"start_time" db:"start_time"`
	CurrentState  WorkflowState `json:"current_state" db:"current_state"`
	Status        RunStatus     `json:"status" db:"status"`
	StepHistory   StepHistory   `json:"step_history" db:"step_history"`
	FailureReason string        `json:"failure_reason,omitempty" db:"failure_reason"`
	// Context carries in-flight operation markers so a resumed run polls
	// instead of re-issuing non-idempotent cloud calls.
	Context   StringMap  `json:"context,omitempty" db:"run_context"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Custom types for JSONB columns, same pattern as the monitor models.

type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		m = StringMap{}
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = StringMap{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported scan type %T for StringMap", value)
	}
	return json.Unmarshal(b, m)
}

type StepHistory []StepRecord

func (h StepHistory) Value() (driver.Value, error) {
	if h == nil {
		h = StepHistory{}
	}
	return json.Marshal(h)
}

func (h *StepHistory) Scan(value interface{}) error {
	if value == nil {
		*h = StepHistory{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported scan type %T for StepHistory", value)
	}
	return json.Unmarshal(b, h)
}
