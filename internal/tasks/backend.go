package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	storageredis "otelsamples/storage/redis"
)

// Result 结果后端中保存的内容
type Result struct {
	State    State                  `json:"state"`
	Result   interface{}            `json:"result,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
	Error    string                 `json:"error,omitempty"`
	DateDone *time.Time             `json:"date_done,omitempty"`
}

// Backend 结果存于 <prefix>:result:<id>，带过期时间
type Backend struct {
	rdb     *redis.Client
	prefix  string
	expires time.Duration
}

func NewBackend(rdb *redis.Client, prefix string, expires time.Duration) *Backend {
	return &Backend{rdb: rdb, prefix: prefix, expires: expires}
}

func (b *Backend) resultKey(id string) string {
	return storageredis.KeyWithPrefix(b.prefix, "result", id)
}

// Store 写入结果；终态自动补上 date_done
func (b *Backend) Store(ctx context.Context, id string, r Result) error {
	if r.State.Ready() && r.DateDone == nil {
		now := time.Now().UTC()
		r.DateDone = &now
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return b.rdb.Set(ctx, b.resultKey(id), body, b.expires).Err()
}

// Get 不存在的 id 与已过期的结果都视为 PENDING
func (b *Backend) Get(ctx context.Context, id string) (Result, error) {
	body, err := b.rdb.Get(ctx, b.resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{State: StatePending}, nil
	}
	if err != nil {
		return Result{}, err
	}

	var r Result
	if err := json.Unmarshal(body, &r); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}

type chordMeta struct {
	Size     int       `json:"size"`
	Callback Signature `json:"callback"`
}

func (b *Backend) chordKey(id string, parts ...string) string {
	return storageredis.KeyWithPrefix(b.prefix, append([]string{"chord", id}, parts...)...)
}

// SaveChord 记录 header 数量和回调
func (b *Backend) SaveChord(ctx context.Context, id string, size int, callback Signature) error {
	body, err := json.Marshal(chordMeta{Size: size, Callback: callback})
	if err != nil {
		return err
	}
	return b.rdb.Set(ctx, b.chordKey(id), body, b.expires).Err()
}

// ChordMemberDone 追加一个 header 结果；最后一个成员拿到全部结果和回调
func (b *Backend) ChordMemberDone(ctx context.Context, id string, result interface{}) (results []interface{}, callback *Signature, err error) {
	body, err := json.Marshal(result)
	if err != nil {
		return nil, nil, err
	}

	resultsKey := b.chordKey(id, "results")
	countKey := b.chordKey(id, "count")

	var incr *redis.IntCmd
	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, resultsKey, body)
		incr = p.Incr(ctx, countKey)
		p.Expire(ctx, resultsKey, b.expires)
		p.Expire(ctx, countKey, b.expires)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record chord result: %w", err)
	}

	metaBody, err := b.rdb.Get(ctx, b.chordKey(id)).Bytes()
	if err != nil {
		return nil, nil, fmt.Errorf("load chord %s: %w", id, err)
	}
	var meta chordMeta
	if err := json.Unmarshal(metaBody, &meta); err != nil {
		return nil, nil, err
	}

	if int(incr.Val()) != meta.Size {
		return nil, nil, nil
	}

	raw, err := b.rdb.LRange(ctx, resultsKey, 0, -1).Result()
	if err != nil {
		return nil, nil, err
	}
	results = make([]interface{}, 0, len(raw))
	for _, r := range raw {
		var v interface{}
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			return nil, nil, err
		}
		results = append(results, v)
	}
	b.rdb.Del(ctx, resultsKey, countKey, b.chordKey(id))
	return results, &meta.Callback, nil
}

// flatten 列表结果展开拼接，其余原样追加
func flatten(results []interface{}) []interface{} {
	out := make([]interface{}, 0, len(results))
	for _, r := range results {
		if list, ok := r.([]interface{}); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, r)
	}
	return out
}
