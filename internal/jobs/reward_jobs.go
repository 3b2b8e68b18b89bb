package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-b2b/internal/reward"
)

// RewardRunner is the part of the reward service the worker drives.
type RewardRunner interface {
	Calculate(ctx context.Context, p reward.Period) (reward.CalculationResult, error)
	Process(ctx context.Context, p reward.Period) (reward.BatchResult, error)
}

// RewardJobs handles reward tasks.
type RewardJobs struct {
	Rewards RewardRunner
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (j *RewardJobs) period(t *asynq.Task) (reward.Period, error) {
	var payload RewardPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return reward.Period{}, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	p := payload.Period(now)
	if err := p.Validate(); err != nil {
		return reward.Period{}, fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return p, nil
}

// HandleCalculate runs TaskRewardCalculate.
func (j *RewardJobs) HandleCalculate(ctx context.Context, t *asynq.Task) error {
	p, err := j.period(t)
	if err != nil {
		return err
	}
	res, err := j.Rewards.Calculate(ctx, p)
	if err != nil {
		return fmt.Errorf("calculate rewards %s: %w", p, err)
	}
	j.Logger.Info().Str("period", p.String()).Int("updated", res.Updated).Msg("reward calculate task done")
	return nil
}

// HandleProcess runs TaskRewardProcess. A batch with failed records returns
// an error so asynq retries it; processed records are skipped on retry.
func (j *RewardJobs) HandleProcess(ctx context.Context, t *asynq.Task) error {
	p, err := j.period(t)
	if err != nil {
		return err
	}
	res, err := j.Rewards.Process(ctx, p)
	if err != nil {
		return fmt.Errorf("process rewards %s: %w", p, err)
	}
	if res.Failed > 0 {
		return fmt.Errorf("process rewards %s: %d of %d records failed", p, res.Failed, len(res.Results))
	}
	j.Logger.Info().Str("period", p.String()).Int("processed", res.Processed).Int("skipped", res.Skipped).
		Msg("reward process task done")
	return nil
}

// Handlers returns the task registrations for the worker.
func (j *RewardJobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskRewardCalculate, Handler: j.HandleCalculate},
		{Type: TaskRewardProcess, Handler: j.HandleProcess},
	}
}
