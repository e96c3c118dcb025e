package job

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minsik-app/ingestion/internal/platform/constants"
)

// RedisStore persists jobs as Redis hashes with a retention TTL, so finished
// jobs stay queryable for a while and stale state expires on its own.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps the shared client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func jobKey(jobID string) string {
	return constants.RedisPrefixJob + jobID
}

func runningKey(kind Kind, source string) string {
	return fmt.Sprintf("%s%s:%s", constants.RedisPrefixRunning, kind, source)
}

// Create implements [Store].
func (s *RedisStore) Create(ctx context.Context, j *Job) error {
	return s.write(ctx, j)
}

// Update implements [Store].
func (s *RedisStore) Update(ctx context.Context, j *Job) error {
	return s.write(ctx, j)
}

func (s *RedisStore) write(ctx context.Context, j *Job) error {
	fields := map[string]any{
		"id":         j.ID,
		"kind":       string(j.Kind),
		"source":     j.Source,
		"language":   j.Language,
		"status":     string(j.Status),
		"total":      j.Total,
		"processed":  j.Processed,
		"successful": j.Successful,
		"failed":     j.Failed,
		"error":      j.Error,
		"started_at": j.StartedAt.UTC().Format(time.RFC3339),
	}
	if j.CompletedAt != nil {
		fields["completed_at"] = j.CompletedAt.UTC().Format(time.RFC3339)
	}

	key := jobKey(j.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, constants.JobStateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("job: persist %s: %w", j.ID, err)
	}
	return nil
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("job: load %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	j := &Job{
		ID:         fields["id"],
		Kind:       Kind(fields["kind"]),
		Source:     fields["source"],
		Language:   fields["language"],
		Status:     Status(fields["status"]),
		Total:      parseInt64(fields["total"]),
		Processed:  parseInt64(fields["processed"]),
		Successful: parseInt64(fields["successful"]),
		Failed:     parseInt64(fields["failed"]),
		Error:      fields["error"],
	}
	if at, err := time.Parse(time.RFC3339, fields["started_at"]); err == nil {
		j.StartedAt = at
	}
	if raw, ok := fields["completed_at"]; ok {
		if at, err := time.Parse(time.RFC3339, raw); err == nil {
			j.CompletedAt = &at
		}
	}
	return j, nil
}

// RequestCancel implements [Store].
func (s *RedisStore) RequestCancel(ctx context.Context, jobID string) error {
	key := jobKey(jobID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("job: check %s: %w", jobID, err)
	}
	if exists == 0 {
		return ErrJobNotFound
	}

	if err := s.client.HSet(ctx, key, "cancel_requested", "1").Err(); err != nil {
		return fmt.Errorf("job: request cancel %s: %w", jobID, err)
	}
	return nil
}

// IsCancelRequested implements [Store].
func (s *RedisStore) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	value, err := s.client.HGet(ctx, jobKey(jobID), "cancel_requested").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("job: read cancel flag %s: %w", jobID, err)
	}
	return value == "1", nil
}

// AcquireRunning implements [Store]. The lock carries a TTL so a crashed
// worker cannot block its (kind, source) slot forever.
func (s *RedisStore) AcquireRunning(ctx context.Context, kind Kind, source, jobID string) (bool, error) {
	acquired, err := s.client.SetNX(ctx, runningKey(kind, source), jobID, constants.RunningLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("job: acquire running lock: %w", err)
	}
	return acquired, nil
}

// releaseScript frees the slot only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseRunning implements [Store].
func (s *RedisStore) ReleaseRunning(ctx context.Context, kind Kind, source, jobID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{runningKey(kind, source)}, jobID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("job: release running lock: %w", err)
	}
	return nil
}

func parseInt64(s string) int64 {
	value, _ := strconv.ParseInt(s, 10, 64)
	return value
}
