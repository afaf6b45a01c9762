package repository

import (
	"context"
	"oabt_client/pkg/security"
)

// SealedKVRepository 在落盘前加密 value，key 保持明文以便排查
type SealedKVRepository struct {
	Inner  KVStore
	Sealer *security.Sealer
}

func NewSealedKVRepository(inner KVStore, sealer *security.Sealer) *SealedKVRepository {
	return &SealedKVRepository{Inner: inner, Sealer: sealer}
}

func (r *SealedKVRepository) Get(ctx context.Context, key string) (string, error) {
	v, err := r.Inner.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return r.Sealer.Open(key, v)
}

func (r *SealedKVRepository) Set(ctx context.Context, key, value string) error {
	sealed, err := r.Sealer.Seal(key, value)
	if err != nil {
		return err
	}
	return r.Inner.Set(ctx, key, sealed)
}

func (r *SealedKVRepository) Remove(ctx context.Context, key string) error {
	return r.Inner.Remove(ctx, key)
}

func (r *SealedKVRepository) MultiSet(ctx context.Context, pairs map[string]string) error {
	sealed := make(map[string]string, len(pairs))
	for k, v := range pairs {
		s, err := r.Sealer.Seal(k, v)
		if err != nil {
			return err
		}
		sealed[k] = s
	}
	return r.Inner.MultiSet(ctx, sealed)
}

func (r *SealedKVRepository) MultiRemove(ctx context.Context, keys ...string) error {
	return r.Inner.MultiRemove(ctx, keys...)
}

func (r *SealedKVRepository) Ping(ctx context.Context) error {
	return r.Inner.Ping(ctx)
}
