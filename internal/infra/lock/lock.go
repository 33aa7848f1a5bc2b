// Package lock provides the single-flight guard around a monitor run.
package lock

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ErrNotHeld is returned by Release when the caller does not own the lock.
var ErrNotHeld = fmt.Errorf("lock is not held")

// LocalLock serialises runs inside one process.
type LocalLock struct {
	held atomic.Bool
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

// TryAcquire takes the lock without waiting.
func (l *LocalLock) TryAcquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.held.CompareAndSwap(false, true), nil
}

func (l *LocalLock) Release(ctx context.Context) error {
	if !l.held.CompareAndSwap(true, false) {
		return ErrNotHeld
	}
	return nil
}
