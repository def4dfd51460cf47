// Package queue provides the Redis-backed task queue used for
// asynchronous ingestion requests submitted through the API.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"semanticgallery/config"
)

// IngestQueue is the list key holding pending ingestion tasks.
const IngestQueue = "gallery:ingest"

// Task statuses as stored under the task's status key.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// taskTTL bounds how long status and result keys live after enqueue.
const taskTTL = 24 * time.Hour

// IngestTask is one queued ingestion request.
type IngestTask struct {
	TaskID    string    `json:"task_id"`
	Path      string    `json:"path"`
	Recursive bool      `json:"recursive"`
	MaxDepth  int       `json:"max_depth"`
	Created   time.Time `json:"created"`
}

// Client wraps the Redis connection for queue operations. It is
// constructed once and shared; no package-level state.
type Client struct {
	rdb *redis.Client
	log *logrus.Logger
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.QueueConfig, log *logrus.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	log.WithField("addr", cfg.RedisAddr).Info("redis connected")
	return &Client{rdb: rdb, log: log}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.rdb.Close() }

// Enqueue pushes an ingestion task and marks it queued, returning the
// assigned task id.
func (c *Client) Enqueue(ctx context.Context, path string, recursive bool, maxDepth int) (string, error) {
	task := IngestTask{
		TaskID:    uuid.NewString(),
		Path:      path,
		Recursive: recursive,
		MaxDepth:  maxDepth,
		Created:   time.Now().UTC(),
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshaling task: %w", err)
	}

	if err := c.rdb.RPush(ctx, IngestQueue, payload).Err(); err != nil {
		return "", fmt.Errorf("enqueueing task: %w", err)
	}
	if err := c.SetTaskStatus(ctx, task.TaskID, StatusQueued); err != nil {
		return "", err
	}

	c.log.WithFields(logrus.Fields{"task": task.TaskID, "path": path}).Info("task enqueued")
	return task.TaskID, nil
}

// Dequeue blocks up to timeout for the next task. A nil task with nil
// error means the wait timed out with nothing available.
func (c *Client) Dequeue(ctx context.Context, timeout time.Duration) (*IngestTask, error) {
	res, err := c.rdb.BLPop(ctx, timeout, IngestQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeueing task: %w", err)
	}
	// BLPOP returns [key, value].
	if len(res) < 2 {
		return nil, nil
	}

	var task IngestTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshaling task: %w", err)
	}
	return &task, nil
}

func statusKey(taskID string) string { return "gallery:task:" + taskID + ":status" }
func resultKey(taskID string) string { return "gallery:task:" + taskID + ":result" }

// SetTaskStatus records the task's lifecycle state.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) error {
	if err := c.rdb.Set(ctx, statusKey(taskID), status, taskTTL).Err(); err != nil {
		return fmt.Errorf("setting task status: %w", err)
	}
	return nil
}

// GetTaskStatus returns the task's lifecycle state, or "" when unknown.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (string, error) {
	status, err := c.rdb.Get(ctx, statusKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting task status: %w", err)
	}
	return status, nil
}

// StoreTaskResult persists the task's outcome payload.
func (c *Client) StoreTaskResult(ctx context.Context, taskID string, result map[string]any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := c.rdb.Set(ctx, resultKey(taskID), payload, taskTTL).Err(); err != nil {
		return fmt.Errorf("storing task result: %w", err)
	}
	return nil
}

// GetTaskResult returns the task's outcome payload, or nil when absent.
func (c *Client) GetTaskResult(ctx context.Context, taskID string) (map[string]any, error) {
	payload, err := c.rdb.Get(ctx, resultKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting task result: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("unmarshaling result: %w", err)
	}
	return result, nil
}
