package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/voyago/booking-flow/internal/domain"
	"github.com/voyago/booking-flow/internal/flow"
)

const (
	flowKeyPrefix = "flow:"
	deadlineIndex = "flows:deadlines"
)

// FlowStore keeps flow attempts as JSON values with a TTL matching the
// attempt deadline, plus a sorted-set index the sweeper scans. Update is
// optimistic: WATCH on the key, version compared inside the transaction.
type FlowStore struct {
	client *redis.Client
}

func NewFlowStore(client *redis.Client) *FlowStore {
	return &FlowStore{client: client}
}

func (s *FlowStore) Client() *redis.Client {
	return s.client
}

func flowKey(id uuid.UUID) string {
	return flowKeyPrefix + id.String()
}

func (s *FlowStore) Create(ctx context.Context, f *flow.Flow) error {
	ttl := time.Until(f.Deadline)
	if ttl <= 0 {
		return domain.ErrInvalidInput
	}
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode flow")
	}
	ok, err := s.client.SetNX(ctx, flowKey(f.ID), data, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "create flow")
	}
	if !ok {
		return domain.ErrConflict
	}
	return s.client.ZAdd(ctx, deadlineIndex, redis.Z{
		Score:  float64(f.Deadline.Unix()),
		Member: f.ID.String(),
	}).Err()
}

func (s *FlowStore) Get(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	val, err := s.client.Get(ctx, flowKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get flow")
	}
	var f flow.Flow
	if err := json.Unmarshal(val, &f); err != nil {
		return nil, errors.Wrap(err, "decode flow")
	}
	return &f, nil
}

func (s *FlowStore) Update(ctx context.Context, f *flow.Flow) error {
	key := flowKey(f.ID)
	ttl := time.Until(f.Deadline)
	if ttl <= 0 {
		return domain.ErrNotFound
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur flow.Flow
		if err := json.Unmarshal(val, &cur); err != nil {
			return errors.Wrap(err, "decode flow")
		}
		if cur.Version != f.Version {
			return domain.ErrStaleFlow
		}
		next := *f
		next.Version = f.Version + 1
		data, err := json.Marshal(&next)
		if err != nil {
			return errors.Wrap(err, "encode flow")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// a concurrent writer got there first; version has moved
		return domain.ErrStaleFlow
	}
	if err != nil {
		return err
	}
	f.Version++
	return nil
}

func (s *FlowStore) Delete(ctx context.Context, id uuid.UUID) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, flowKey(id))
	pipe.ZRem(ctx, deadlineIndex, id.String())
	_, err := pipe.Exec(ctx)
	return err
}

// DueFlowIDs returns attempts whose deadline has passed, oldest first.
func (s *FlowStore) DueFlowIDs(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error) {
	vals, err := s.client.ZRangeByScore(ctx, deadlineIndex, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "scan deadline index")
	}
	ids := make([]uuid.UUID, 0, len(vals))
	for _, v := range vals {
		id, err := uuid.Parse(v)
		if err != nil {
			s.client.ZRem(ctx, deadlineIndex, v)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
