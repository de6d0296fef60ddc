package cache

import (
	"context"
	"testing"
	"time"
)

func TestSlotLockKey(t *testing.T) {
	if got := slotLockKey("f1", "s9"); got != "lock:facility:f1:slot:s9" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewSlotLockerDefaults(t *testing.T) {
	locker := NewSlotLocker(Options{Addr: "127.0.0.1:6379"})
	defer locker.Close()
	if locker.ttl != 10*time.Second || locker.attempts != 5 || locker.retryDelay != 50*time.Millisecond {
		t.Fatalf("unexpected defaults: ttl=%v attempts=%d delay=%v", locker.ttl, locker.attempts, locker.retryDelay)
	}
}

func TestAcquireSlotLockReportsConnectionErrors(t *testing.T) {
	locker := NewSlotLocker(Options{Addr: "127.0.0.1:1", Attempts: 1})
	defer locker.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := locker.AcquireSlotLock(ctx, "f1", "s1"); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
}
