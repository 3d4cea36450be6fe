package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/iadvisors/brand-assistant/internal/brand"
	"github.com/redis/go-redis/v9"
)

const brandCacheTTL = 5 * time.Minute

type Store struct {
	client *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func brandKey(brandID string) string { return "brand:" + brandID }

// GetBrand returns (nil, nil) on a cache miss.
func (s *Store) GetBrand(ctx context.Context, brandID string) (*brand.Brand, error) {
	raw, err := s.client.Get(ctx, brandKey(brandID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var b brand.Brand
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) SetBrand(ctx context.Context, b *brand.Brand) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, brandKey(b.ID), raw, brandCacheTTL).Err()
}

func (s *Store) DeleteBrand(ctx context.Context, brandID string) error {
	return s.client.Del(ctx, brandKey(brandID)).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
