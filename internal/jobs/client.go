package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/reward"
)

// uniqueFor keeps a second enqueue for the same period from queueing while
// the first is still pending.
const uniqueFor = 30 * time.Minute

// Client enqueues reward tasks.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a Client.
func NewClient(redisOpts asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueCalculate queues a reward calculation for p.
func (c *Client) EnqueueCalculate(ctx context.Context, p reward.Period) (string, error) {
	return c.enqueue(ctx, TaskRewardCalculate, p)
}

// EnqueueProcess queues a reward payout for p.
func (c *Client) EnqueueProcess(ctx context.Context, p reward.Period) (string, error) {
	return c.enqueue(ctx, TaskRewardProcess, p)
}

func (c *Client) enqueue(ctx context.Context, taskType string, p reward.Period) (string, error) {
	task, err := NewRewardTask(taskType, RewardPayload{Quarter: p.Quarter, Year: p.Year},
		asynq.Unique(uniqueFor), asynq.MaxRetry(5))
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return "", common.Detailed(common.ErrConflict, "a "+taskType+" run for "+p.String()+" is already queued", nil)
		}
		return "", err
	}
	return info.ID, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
