package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another run holds the content plan lock.
var ErrLocked = errors.New("content plan is locked")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker serializes read-modify-write cycles across processes.
type Locker interface {
	Acquire(ctx context.Context) (Unlock, error)
}

// NopLocker never blocks. Used when the scheduler guarantees a single run.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}

const lockOwnerFile = "owner.json"

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// FileLocker uses an exclusive mkdir next to the plan file. A lock older
// than TTL is treated as abandoned and taken over.
type FileLocker struct {
	Dir string
	TTL time.Duration
	now func() time.Time
}

// NewFileLocker locks planPath by creating planPath + ".lock".
func NewFileLocker(planPath string, ttl time.Duration) *FileLocker {
	return &FileLocker{
		Dir: planPath + ".lock",
		TTL: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (l *FileLocker) Acquire(ctx context.Context) (Unlock, error) {
	if strings.TrimSpace(l.Dir) == "" {
		return nil, fmt.Errorf("lock directory is required")
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := os.Mkdir(l.Dir, 0o755)
		if err == nil {
			if err := l.writeOwner(); err != nil {
				_ = os.RemoveAll(l.Dir)
				return nil, err
			}
			return l.release, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock %s: %w", l.Dir, err)
		}

		owner, readErr := l.readOwner()
		if readErr == nil && l.expired(owner) {
			if err := os.RemoveAll(l.Dir); err != nil {
				return nil, fmt.Errorf("remove abandoned lock %s: %w", l.Dir, err)
			}
			continue
		}
		if readErr == nil {
			return nil, fmt.Errorf("%w: %s (pid=%d created_at=%s host=%s)",
				ErrLocked, l.Dir, owner.PID, owner.CreatedAt, owner.Hostname)
		}
		return nil, fmt.Errorf("%w: %s", ErrLocked, l.Dir)
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, l.Dir)
}

func (l *FileLocker) expired(owner lockOwner) bool {
	if l.TTL <= 0 {
		return false
	}
	created, err := time.Parse(time.RFC3339, owner.CreatedAt)
	if err != nil {
		return false
	}
	return l.now().Sub(created) > l.TTL
}

func (l *FileLocker) writeOwner() error {
	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: l.now().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, err := json.Marshal(owner)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(l.Dir, lockOwnerFile), data, 0o644); err != nil {
		return fmt.Errorf("write lock owner for %s: %w", l.Dir, err)
	}
	return nil
}

func (l *FileLocker) readOwner() (lockOwner, error) {
	var owner lockOwner
	data, err := os.ReadFile(filepath.Join(l.Dir, lockOwnerFile))
	if err != nil {
		return owner, err
	}
	if err := json.Unmarshal(data, &owner); err != nil {
		return owner, err
	}
	if owner.PID <= 0 || owner.CreatedAt == "" {
		return owner, fmt.Errorf("incomplete lock owner")
	}
	return owner, nil
}

func (l *FileLocker) release(context.Context) error {
	_ = os.Remove(filepath.Join(l.Dir, lockOwnerFile))
	if err := os.Remove(l.Dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.Dir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker holds a SET NX key with a TTL so a crashed run frees the lock.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (Unlock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire redis lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: redis key %s", ErrLocked, l.key)
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release redis lock %s: %w", l.key, err)
		}
		return nil
	}, nil
}
