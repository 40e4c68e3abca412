// Package queue is the durable handoff between the Control Plane (single
// writer) and the Build Worker fleet (N readers), backed by Redis. It
// mirrors the teacher repo's in-memory jobs.Queue in shape (Enqueue,
// finishJob-style retention trimming) but persists jobs in Redis so they
// survive across separate OS processes (spec §5).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	pendingListKey   = "shipline:builds:pending"
	dedupSetKey      = "shipline:builds:dedup"
	completedListKey = "shipline:builds:completed"
	failedListKey    = "shipline:builds:failed"
	jobKeyPrefix     = "shipline:build:"

	maxCompletedRetained = 100
	maxFailedRetained    = 50

	popTimeout = 5 * time.Second
)

// BuildJob is the payload enqueued for one build attempt: a BuildJobData
// per spec §4.1, "Queue submission" (env_vars carries the project's
// decrypted environment snapshot at enqueue time).
type BuildJob struct {
	BuildID        uuid.UUID         `json:"build_id"`
	ProjectID      uuid.UUID         `json:"project_id"`
	RepoURL        string            `json:"repo_url"`
	CommitSHA      string            `json:"commit_sha"`
	Branch         string            `json:"branch"`
	RootDirectory  string            `json:"root_directory"`
	BuildCommand   string            `json:"build_command"`
	Framework      string            `json:"framework"`
	EnvVars        map[string]string `json:"env_vars,omitempty"`
	InstallationID string            `json:"installation_id,omitempty"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
}

func jobKey(buildID uuid.UUID) string {
	return jobKeyPrefix + buildID.String()
}

// Queue is a Redis-backed job queue. It is safe for concurrent use by
// multiple worker goroutines/processes.
type Queue struct {
	rdb *redis.Client
}

// New connects to Redis at redisURL (e.g. "redis://localhost:6379/0").
func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Queue{rdb: redis.NewClient(opts)}, nil
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Ping verifies connectivity, used by readiness probes.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Enqueue pushes job onto the pending list. Enqueue is idempotent keyed on
// job.BuildID: a job already present in the dedup set is a no-op, so a
// webhook retry or an at-least-once delivery cannot double-enqueue the same
// build (spec §5, "Idempotent enqueue").
func (q *Queue) Enqueue(ctx context.Context, job *BuildJob) error {
	id := job.BuildID.String()

	added, err := q.rdb.SAdd(ctx, dedupSetKey, id).Result()
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if added == 0 {
		return nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.BuildID), data, 0)
	pipe.LPush(ctx, pendingListKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to popTimeout waiting for a pending job, or returns
// (nil, nil) on timeout so callers can poll a shutdown context between
// attempts.
func (q *Queue) Dequeue(ctx context.Context) (*BuildJob, error) {
	res, err := q.rdb.BRPop(ctx, popTimeout, pendingListKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply shape: %v", res)
	}

	id := res[1]
	data, err := q.rdb.Get(ctx, jobKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job BuildJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// MarkCompleted records a build as finished successfully and trims the
// completed list to the most recent maxCompletedRetained entries (spec §5,
// "Retention").
func (q *Queue) MarkCompleted(ctx context.Context, buildID uuid.UUID) error {
	return q.finish(ctx, buildID, completedListKey, maxCompletedRetained)
}

// MarkFailed records a build as finished with an error and trims the failed
// list to the most recent maxFailedRetained entries.
func (q *Queue) MarkFailed(ctx context.Context, buildID uuid.UUID) error {
	return q.finish(ctx, buildID, failedListKey, maxFailedRetained)
}

func (q *Queue) finish(ctx context.Context, buildID uuid.UUID, listKey string, maxRetained int) error {
	id := buildID.String()

	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, listKey, id)
	pipe.LTrim(ctx, listKey, 0, int64(maxRetained-1))
	pipe.SRem(ctx, dedupSetKey, id)
	pipe.Del(ctx, jobKeyPrefix+id)
	_, err := pipe.Exec(ctx)
	return err
}

// PendingDepth returns the number of jobs currently waiting to be picked up.
// Nothing feeds it into internal/metrics' queue-depth gauge.
func (q *Queue) PendingDepth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, pendingListKey).Result()
}

// Drain discards every pending job and its dedup/job-data keys, returning
// the number of jobs removed. Exposed as an admin operation (spec §6,
// "DELETE /builds/queue (admin): drain queue").
func (q *Queue) Drain(ctx context.Context) (int, error) {
	ids, err := q.rdb.LRange(ctx, pendingListKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.rdb.TxPipeline()
	pipe.Del(ctx, pendingListKey)
	for _, id := range ids {
		pipe.SRem(ctx, dedupSetKey, id)
		pipe.Del(ctx, jobKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("drain queue: %w", err)
	}
	return len(ids), nil
}
