package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/reward"
)

type fakeRunner struct {
	calculated []reward.Period
	processed  []reward.Period
	batch      reward.BatchResult
	err        error
}

func (f *fakeRunner) Calculate(_ context.Context, p reward.Period) (reward.CalculationResult, error) {
	f.calculated = append(f.calculated, p)
	return reward.CalculationResult{Period: p}, f.err
}

func (f *fakeRunner) Process(_ context.Context, p reward.Period) (reward.BatchResult, error) {
	f.processed = append(f.processed, p)
	res := f.batch
	res.Period = p
	return res, f.err
}

func fixedNow() time.Time { return time.Date(2025, 4, 1, 2, 0, 0, 0, time.UTC) }

func TestCronCalculateResolvesPreviousQuarter(t *testing.T) {
	runner := &fakeRunner{}
	jobs := &RewardJobs{Rewards: runner, Now: fixedNow}

	task, err := NewRewardTask(TaskRewardCalculate, RewardPayload{Previous: true})
	require.NoError(t, err)
	require.NoError(t, jobs.HandleCalculate(context.Background(), task))
	require.Equal(t, []reward.Period{{Quarter: 1, Year: 2025}}, runner.calculated)
}

func TestProcessTaskRetriesOnFailedRecords(t *testing.T) {
	runner := &fakeRunner{batch: reward.BatchResult{
		Processed: 1,
		Failed:    1,
		Results:   make([]reward.RecordResult, 2),
	}}
	jobs := &RewardJobs{Rewards: runner, Now: fixedNow}

	task, err := NewRewardTask(TaskRewardProcess, RewardPayload{Quarter: 4, Year: 2024})
	require.NoError(t, err)
	err = jobs.HandleProcess(context.Background(), task)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
	require.Equal(t, []reward.Period{{Quarter: 4, Year: 2024}}, runner.processed)

	runner.batch = reward.BatchResult{Processed: 1, Skipped: 1}
	require.NoError(t, jobs.HandleProcess(context.Background(), task))
}

func TestRewardTaskBadPayloadSkipsRetry(t *testing.T) {
	jobs := &RewardJobs{Rewards: &fakeRunner{}, Now: fixedNow}

	err := jobs.HandleCalculate(context.Background(), asynq.NewTask(TaskRewardCalculate, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewRewardTask(TaskRewardProcess, RewardPayload{Quarter: 9, Year: 2025})
	require.NoError(t, err)
	require.ErrorIs(t, jobs.HandleProcess(context.Background(), task), asynq.SkipRetry)

	_, err = NewRewardTask("reward:unknown", RewardPayload{})
	require.Error(t, err)
}

func TestRewardJobsHandlers(t *testing.T) {
	jobs := &RewardJobs{Rewards: &fakeRunner{}}
	types := []string{}
	for _, h := range jobs.Handlers() {
		types = append(types, h.Type)
	}
	require.Equal(t, []string{TaskRewardCalculate, TaskRewardProcess}, types)
}
