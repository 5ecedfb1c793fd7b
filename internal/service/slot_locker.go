package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/pkg/apperror"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// Errors
// =============================================================================

// ErrSlotBusy is returned when another request holds one of the slot keys.
var ErrSlotBusy = apperror.Conflict("schedule slot is being modified, retry")

// releaseSlotScript deletes a lock key only if it still holds our token.
// go-redis switches to EVALSHA after the first call.
var releaseSlotScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// =============================================================================
// Constants
// =============================================================================

const (
	SlotRoomKeyPrefix  = "slot:lock:room:"
	SlotStaffKeyPrefix = "slot:lock:staff:"

	defaultSlotTTL       = 15 * time.Second
	defaultSlotWait      = 3 * time.Second
	slotRetryInterval    = 50 * time.Millisecond
	localRetryInterval   = 5 * time.Millisecond
	slotReleaseTimeout   = 2 * time.Second
	mutexCleanupInterval = 10 * time.Minute
	mutexStaleThreshold  = 10 * time.Minute
)

// =============================================================================
// Types
// =============================================================================

// SlotLocker serializes validate+commit for the room and team of a booking.
// The returned release func must always be called.
type SlotLocker interface {
	Acquire(ctx context.Context, keys []string) (release func(), err error)
}

// SlotKeys returns the sorted, de-duplicated lock keys of a room and team.
// Sorting gives every caller the same acquisition order.
func SlotKeys(roomID uuid.UUID, team entity.Team) []string {
	set := map[string]struct{}{SlotRoomKeyPrefix + roomID.String(): {}}
	ids := []uuid.UUID{team.SurgeonID, team.AnesthesiologistID}
	if team.AssistantSurgeonID != nil {
		ids = append(ids, *team.AssistantSurgeonID)
	}
	ids = append(ids, team.Nurses()...)
	for _, id := range ids {
		if id != uuid.Nil {
			set[SlotStaffKeyPrefix+id.String()] = struct{}{}
		}
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Redis locker
// =============================================================================

// RedisSlotLocker holds slot keys with SET NX PX and a random token, so a lock
// that outlived its TTL is never released by its former owner.
type RedisSlotLocker struct {
	client *redis.Client
	log    *logrus.Logger
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisSlotLocker(client *redis.Client, log *logrus.Logger, ttl, wait time.Duration) *RedisSlotLocker {
	if ttl <= 0 {
		ttl = defaultSlotTTL
	}
	if wait <= 0 {
		wait = defaultSlotWait
	}
	return &RedisSlotLocker{client: client, log: log, ttl: ttl, wait: wait}
}

// Acquire takes every key in order, retrying until the wait budget runs out.
// On failure the keys taken so far are released.
func (l *RedisSlotLocker) Acquire(ctx context.Context, keys []string) (func(), error) {
	token, err := newLockToken()
	if err != nil {
		return nil, err
	}

	held := make([]string, 0, len(keys))
	release := func() {
		// release must work even when ctx is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), slotReleaseTimeout)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseSlotScript.Run(releaseCtx, l.client, []string{held[i]}, token).Err(); err != nil {
				l.log.Warnf("Failed to release slot key %s: %+v", held[i], err)
			}
		}
	}

	deadline := time.Now().Add(l.wait)
	for _, key := range keys {
		for {
			ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
			if err != nil {
				release()
				l.log.Warnf("Failed to acquire slot key %s: %+v", key, err)
				return nil, fmt.Errorf("acquire slot key %s: %w", key, err)
			}
			if ok {
				held = append(held, key)
				break
			}
			if time.Now().After(deadline) {
				release()
				l.log.Debugf("Slot key %s still held after %v", key, l.wait)
				return nil, ErrSlotBusy
			}

			select {
			case <-ctx.Done():
				release()
				return nil, ctx.Err()
			case <-time.After(slotRetryInterval):
			}
		}
	}

	return release, nil
}

func newLockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// =============================================================================
// In-process locker
// =============================================================================

// LocalSlotLocker serializes slots within one process. It backs single-node
// deployments without redis.
type LocalSlotLocker struct {
	keys sync.Map // map[string]*mutexWithTimestamp
	wait time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

// mutexWithTimestamp tracks mutex usage for cleanup
type mutexWithTimestamp struct {
	mu       sync.Mutex
	lastUsed atomic.Int64 // Unix timestamp
}

// NewLocalSlotLocker starts the stale-mutex cleanup loop. Call Stop on shutdown.
// wait bounds how long Acquire retries a held key; zero means the default.
func NewLocalSlotLocker(wait time.Duration) *LocalSlotLocker {
	if wait <= 0 {
		wait = defaultSlotWait
	}
	l := &LocalSlotLocker{wait: wait, stopChan: make(chan struct{})}
	l.wg.Add(1)
	go l.cleanupLoop()
	return l
}

// Acquire takes every key in order with the same wait budget and ctx handling
// as RedisSlotLocker. On failure the keys taken so far are released.
func (l *LocalSlotLocker) Acquire(ctx context.Context, keys []string) (func(), error) {
	held := make([]*mutexWithTimestamp, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].lastUsed.Store(time.Now().Unix())
			held[i].mu.Unlock()
		}
	}

	deadline := time.Now().Add(l.wait)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			release()
			return nil, err
		}
		for {
			actual, _ := l.keys.LoadOrStore(key, &mutexWithTimestamp{})
			mt := actual.(*mutexWithTimestamp)
			if !mt.mu.TryLock() {
				if time.Now().After(deadline) {
					release()
					return nil, ErrSlotBusy
				}
				select {
				case <-ctx.Done():
					release()
					return nil, ctx.Err()
				case <-time.After(localRetryInterval):
				}
				continue
			}
			// cleanup may have dropped the mutex before we took it
			if current, ok := l.keys.Load(key); !ok || current != actual {
				mt.mu.Unlock()
				continue
			}
			mt.lastUsed.Store(time.Now().Unix())
			held = append(held, mt)
			break
		}
	}
	return release, nil
}

// Stop gracefully shuts down the cleanup loop.
// Safe to call multiple times.
func (l *LocalSlotLocker) Stop() {
	if l.stopped.CompareAndSwap(false, true) {
		close(l.stopChan)
		l.wg.Wait()
	}
}

func (l *LocalSlotLocker) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(mutexCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanupStale()
		}
	}
}

// cleanupStale drops mutexes that are unused and unlocked.
func (l *LocalSlotLocker) cleanupStale() {
	threshold := time.Now().Add(-mutexStaleThreshold).Unix()
	l.keys.Range(func(key, value any) bool {
		mt := value.(*mutexWithTimestamp)
		if mt.lastUsed.Load() < threshold && mt.mu.TryLock() {
			l.keys.Delete(key)
			mt.mu.Unlock()
		}
		return true
	})
}
