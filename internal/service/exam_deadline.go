package service

import (
	"context"
	"errors"
	"fmt"
	"oabt_client/internal/repository"
	"oabt_client/internal/util"
	"strconv"
	"time"
)

// DeadlineStore 把考试截止时间（unix 毫秒）存到本地 KV，进程重启后可恢复倒计时
type DeadlineStore struct {
	Store repository.KVStore
}

func NewDeadlineStore(store repository.KVStore) *DeadlineStore {
	return &DeadlineStore{Store: store}
}

// Load 返回已保存的截止时间；不存在或无法解析时 ok=false
func (d *DeadlineStore) Load(ctx context.Context, testID string) (time.Time, bool, error) {
	raw, err := d.Store.Get(ctx, util.TimerKey(testID))
	if errors.Is(err, util.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load deadline: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (d *DeadlineStore) Save(ctx context.Context, testID string, deadline time.Time) error {
	if err := d.Store.Set(ctx, util.TimerKey(testID), strconv.FormatInt(deadline.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("save deadline: %w", err)
	}
	return nil
}

func (d *DeadlineStore) Clear(ctx context.Context, testID string) error {
	if err := d.Store.Remove(ctx, util.TimerKey(testID)); err != nil {
		return fmt.Errorf("clear deadline: %w", err)
	}
	return nil
}

// Resolve 未来的截止时间原样沿用，否则从 now 开始一个新的 duration 并落盘
func (d *DeadlineStore) Resolve(ctx context.Context, testID string, now time.Time, duration time.Duration) (time.Time, error) {
	stored, ok, err := d.Load(ctx, testID)
	if err != nil {
		return time.Time{}, err
	}
	if ok && stored.After(now) {
		return stored, nil
	}
	deadline := now.Add(duration)
	if err := d.Save(ctx, testID, deadline); err != nil {
		return time.Time{}, err
	}
	return deadline, nil
}
