package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"or-scheduler/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotKeys(t *testing.T) {
	roomID := uuid.New()
	surgeon, anes, nurse := uuid.New(), uuid.New(), uuid.New()
	team := entity.Team{
		SurgeonID:          surgeon,
		AssistantSurgeonID: &surgeon,
		AnesthesiologistID: anes,
		NurseIDs:           entity.NurseIDStrings([]uuid.UUID{nurse, nurse}),
	}

	keys := SlotKeys(roomID, team)
	assert.ElementsMatch(t, []string{
		SlotRoomKeyPrefix + roomID.String(),
		SlotStaffKeyPrefix + surgeon.String(),
		SlotStaffKeyPrefix + anes.String(),
		SlotStaffKeyPrefix + nurse.String(),
	}, keys)
	assert.IsNonDecreasing(t, keys)

	// same team, same order
	assert.Equal(t, keys, SlotKeys(roomID, team))
}

func TestSlotKeys_SkipsUnsetStaff(t *testing.T) {
	roomID := uuid.New()
	keys := SlotKeys(roomID, entity.Team{SurgeonID: uuid.New()})
	assert.Len(t, keys, 2)
}

func TestLocalSlotLocker_Serializes(t *testing.T) {
	locker := NewLocalSlotLocker(0)
	defer locker.Stop()

	keys := []string{"slot:lock:room:a", "slot:lock:staff:b"}
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), keys)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalSlotLocker_DisjointKeysDoNotBlock(t *testing.T) {
	locker := NewLocalSlotLocker(0)
	defer locker.Stop()

	release, err := locker.Acquire(context.Background(), []string{"slot:lock:room:a"})
	require.NoError(t, err)
	defer release()

	done := make(chan struct{})
	go func() {
		other, err := locker.Acquire(context.Background(), []string{"slot:lock:room:b"})
		if err == nil {
			other()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disjoint slot blocked")
	}
}

func TestLocalSlotLocker_CancelledContext(t *testing.T) {
	locker := NewLocalSlotLocker(0)
	defer locker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := locker.Acquire(ctx, []string{"slot:lock:room:a"})
	assert.ErrorIs(t, err, context.Canceled)

	// nothing stays held after the failed attempt
	release, err := locker.Acquire(context.Background(), []string{"slot:lock:room:a"})
	require.NoError(t, err)
	release()
}

func TestLocalSlotLocker_HeldKeyTimesOut(t *testing.T) {
	locker := NewLocalSlotLocker(100 * time.Millisecond)
	defer locker.Stop()

	release, err := locker.Acquire(context.Background(), []string{"slot:lock:staff:b"})
	require.NoError(t, err)
	defer release()

	started := time.Now()
	_, err = locker.Acquire(context.Background(), []string{"slot:lock:room:a", "slot:lock:staff:b"})
	elapsed := time.Since(started)

	assert.ErrorIs(t, err, ErrSlotBusy)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	// the room key taken before the timeout was given back
	other, err := locker.Acquire(context.Background(), []string{"slot:lock:room:a"})
	require.NoError(t, err)
	other()
}

func TestLocalSlotLocker_CancelWhileWaiting(t *testing.T) {
	locker := NewLocalSlotLocker(10 * time.Second)
	defer locker.Stop()

	release, err := locker.Acquire(context.Background(), []string{"slot:lock:room:a"})
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err = locker.Acquire(ctx, []string{"slot:lock:room:a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), time.Second)
}

func TestLocalSlotLocker_CleanupDropsIdleMutexes(t *testing.T) {
	locker := NewLocalSlotLocker(0)
	defer locker.Stop()

	release, err := locker.Acquire(context.Background(), []string{"slot:lock:room:a", "slot:lock:room:b"})
	require.NoError(t, err)
	release()

	stale := time.Now().Add(-2 * mutexStaleThreshold).Unix()
	locker.keys.Range(func(_, value any) bool {
		value.(*mutexWithTimestamp).lastUsed.Store(stale)
		return true
	})
	locker.cleanupStale()

	count := 0
	locker.keys.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Zero(t, count)
}
