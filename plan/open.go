package plan

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ai-course-pipeline/config"
)

// OpenBackend builds the Backend named by cfg.Backend. The returned close
// func is never nil.
func OpenBackend(ctx context.Context, cfg config.PlanConfig, secrets config.Secrets) (Backend, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "file":
		return NewFileBackend(cfg.File), noop, nil
	case "s3":
		b, err := NewS3Backend(ctx, cfg.Region, cfg.Bucket, cfg.Key)
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	case "gcs":
		b, err := NewGCSBackend(ctx, cfg.Bucket, cfg.Key)
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	case "postgres":
		if secrets.DatabaseURL == "" {
			return nil, noop, fmt.Errorf("plan backend postgres needs DATABASE_URL")
		}
		b, err := NewPostgresBackend(ctx, secrets.DatabaseURL, cfg.Name)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown plan backend %q", cfg.Backend)
	}
}

// OpenLocker builds the Locker named by cfg.Lock.
func OpenLocker(cfg config.PlanConfig, secrets config.Secrets) (Locker, error) {
	switch cfg.Lock {
	case "", "none":
		return NopLocker{}, nil
	case "file":
		return NewFileLocker(cfg.File, cfg.LockTTL), nil
	case "redis":
		if secrets.RedisAddr == "" {
			return nil, fmt.Errorf("plan lock redis needs REDIS_ADDR")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     secrets.RedisAddr,
			Password: secrets.RedisPassword,
		})
		return NewRedisLocker(client, "content-plan:lock:"+cfg.Name, cfg.LockTTL), nil
	default:
		return nil, fmt.Errorf("unknown plan lock %q", cfg.Lock)
	}
}
