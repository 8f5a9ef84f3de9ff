package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisRecordPrefix   = "notifykit:n:"
	redisAttemptsPrefix = "notifykit:a:"
	redisRecipientKey   = "notifykit:r:"
	redisDueKey         = "notifykit:due"
	redisAllKey         = "notifykit:all"
)

// transitionScript performs the conditional status swap server-side so that
// concurrent workers racing for the same notification resolve atomically.
// Only the mutable scalar hash fields are touched; the record blob written at
// creation is never re-encoded, so payload bytes survive exactly as stored.
//
// KEYS[1] record hash, KEYS[2] due index.
// ARGV[1] target status, ARGV[2] RFC3339 timestamp, ARGV[3] acted action,
// ARGV[4] notification id, ARGV[5..] permitted source statuses.
// Returns -2 when the record is missing, 0 on a lost race, 1 on success.
var transitionScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -2 end
local ok = false
for i = 5, #ARGV do
  if status == ARGV[i] then
    ok = true
    break
  end
end
if not ok then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
if ARGV[1] == 'read' then
  redis.call('HSET', KEYS[1], 'read_at', ARGV[2])
elseif ARGV[1] == 'acted_upon' then
  redis.call('HSET', KEYS[1], 'acted_upon_at', ARGV[2])
  if ARGV[3] ~= '' then
    redis.call('HSET', KEYS[1], 'acted_action', ARGV[3])
  end
end
if ARGV[1] ~= 'pending' and ARGV[1] ~= 'scheduled' then
  redis.call('ZREM', KEYS[2], ARGV[4])
end
return 1
`)

// RedisStore is a Redis-backed implementation of the Store interface.
// Each notification is a hash: an immutable JSON blob under "record" plus
// scalar fields for everything a transition mutates (status, read_at,
// acted_upon_at, acted_action). A sorted set indexes due times; conditional
// transitions run as a Lua script for atomicity.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed notification store using the provided client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, n *Notification) error {
	if n.RecipientID == "" {
		return ErrMissingRecipient
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Status == "" {
		n.Status = StatusPending
	}

	key := redisRecordPrefix + n.ID.String()
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if exists > 0 {
		return ErrAlreadyExists
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "record", string(data), "status", string(n.Status))
	pipe.SAdd(ctx, redisAllKey, n.ID.String())
	pipe.SAdd(ctx, redisRecipientKey+n.RecipientID, n.ID.String())
	if n.Status == StatusPending || n.Status == StatusScheduled {
		pipe.ZAdd(ctx, redisDueKey, redis.Z{
			Score:  float64(n.DueAt().UnixMilli()),
			Member: n.ID.String(),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	fields, err := s.client.HGetAll(ctx, redisRecordPrefix+id.String()).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(fields)
}

func (s *RedisStore) ListForRecipient(ctx context.Context, recipientID string, f Filter) ([]Notification, error) {
	ids, err := s.client.SMembers(ctx, redisRecipientKey+recipientID).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	records, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	var filtered []Notification
	for _, rec := range records {
		if rec.Status == StatusFailed && !f.IncludeFailed {
			continue
		}
		if rec.Status == StatusExpired && !f.IncludeExpired {
			continue
		}
		if f.OnlyUnread && rec.ReadAt != nil {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, rec.Type) {
			continue
		}
		if f.Since != nil && rec.CreatedAt.Before(*f.Since) {
			continue
		}
		filtered = append(filtered, rec)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start := f.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}
	end := start + f.Limit
	if f.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], nil
}

func (s *RedisStore) ListDue(ctx context.Context, before time.Time, limit int) ([]Notification, error) {
	ids, err := s.client.ZRangeByScore(ctx, redisDueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", before.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	records, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	// The due index may briefly contain records that already moved on;
	// re-check status before handing them to the dispatcher.
	var due []Notification
	for _, rec := range records {
		if rec.Status != StatusPending && rec.Status != StatusScheduled {
			continue
		}
		if rec.DueAt().After(before) {
			continue
		}
		due = append(due, rec)
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *RedisStore) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, opts ...TransitionOption) (bool, error) {
	if err := validateEdges(from, to); err != nil {
		return false, err
	}
	cfg := applyTransitionOptions(opts)

	argv := make([]any, 0, 4+len(from))
	argv = append(argv, string(to), cfg.at.Format(time.RFC3339Nano), cfg.action, id.String())
	for _, f := range from {
		argv = append(argv, string(f))
	}

	res, err := transitionScript.Run(ctx, s.client,
		[]string{redisRecordPrefix + id.String(), redisDueKey}, argv...).Int()
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	switch res {
	case -2:
		return false, ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (s *RedisStore) AppendAttempt(ctx context.Context, attempt DeliveryAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := s.client.RPush(ctx, redisAttemptsPrefix+attempt.NotificationID.String(), data).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]DeliveryAttempt, error) {
	raw, err := s.client.LRange(ctx, redisAttemptsPrefix+notificationID.String(), 0, -1).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	attempts := make([]DeliveryAttempt, 0, len(raw))
	for _, item := range raw {
		var a DeliveryAttempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func (s *RedisStore) List(ctx context.Context, q Query) ([]Notification, error) {
	ids, err := s.client.SMembers(ctx, redisAllKey).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	records, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []Notification
	for _, rec := range records {
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, rec.Status) {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, rec.Type) {
			continue
		}
		if q.ReadSince != nil && (rec.ReadAt == nil || rec.ReadAt.Before(*q.ReadSince)) {
			continue
		}
		if q.CreatedBefore != nil && !rec.CreatedAt.Before(*q.CreatedBefore) {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// fetch loads and decodes a set of records by ID, skipping entries that
// disappeared between the index read and the value read.
func (s *RedisStore) fetch(ctx context.Context, ids []string) ([]Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, redisRecordPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	records := make([]Notification, 0, len(ids))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		n, err := decodeRecord(fields)
		if err != nil {
			return nil, err
		}
		records = append(records, *n)
	}
	return records, nil
}

// decodeRecord rebuilds a notification from its hash: the immutable record
// blob first, then the scalar fields transitions may have overwritten.
func decodeRecord(fields map[string]string) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(fields["record"]), &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	if st := fields["status"]; st != "" {
		n.Status = Status(st)
	}
	if v := fields["read_at"]; v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse read_at: %w", err)
		}
		n.ReadAt = &at
	}
	if v := fields["acted_upon_at"]; v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse acted_upon_at: %w", err)
		}
		n.ActedUponAt = &at
	}
	if v := fields["acted_action"]; v != "" {
		n.ActedAction = v
	}
	return &n, nil
}
