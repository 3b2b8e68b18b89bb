// Package jobs runs reward batches in the background with asynq.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-b2b/internal/reward"
)

const (
	// QueueDefault is the queue reward tasks are placed on.
	QueueDefault = "default"
	// TaskRewardCalculate recomputes customer rewards for a quarter.
	TaskRewardCalculate = "reward:calculate"
	// TaskRewardProcess pays pending customer rewards for a quarter.
	TaskRewardProcess = "reward:process"
)

// RewardPayload names the quarter a reward task works on. When Previous is
// set the quarter is resolved at run time to the one before the current date.
type RewardPayload struct {
	Quarter  int  `json:"quarter,omitempty"`
	Year     int  `json:"year,omitempty"`
	Previous bool `json:"previous,omitempty"`
}

// Period resolves the payload against now.
func (p RewardPayload) Period(now time.Time) reward.Period {
	if p.Previous {
		return reward.Previous(now)
	}
	return reward.Period{Quarter: p.Quarter, Year: p.Year}
}

// NewRewardTask builds a reward task of the given type.
func NewRewardTask(taskType string, payload RewardPayload, opts ...asynq.Option) (*asynq.Task, error) {
	switch taskType {
	case TaskRewardCalculate, TaskRewardProcess:
	default:
		return nil, fmt.Errorf("jobs: unknown reward task %q", taskType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)
	return asynq.NewTask(taskType, body, opts...), nil
}
