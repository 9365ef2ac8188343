package core

import (
	"errors"
	"testing"
	"time"
)

func TestNamedLockWithLockRunsExclusively(t *testing.T) {
	l := NewNamedLock("test", 50*time.Millisecond)
	order := []int{}

	if err := l.WithLock(func() error {
		order = append(order, 1)
		return nil
	}); err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if err := l.WithLock(func() error {
		order = append(order, 2)
		return nil
	}); err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
}

func TestNamedLockAcquireTimesOut(t *testing.T) {
	l := NewNamedLock("contended", 20*time.Millisecond)
	if err := l.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer l.Release()

	err := l.Acquire()
	if err == nil {
		t.Fatalf("expected timeout error on contended lock")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestNamedLockDefaultTimeout(t *testing.T) {
	l := NewNamedLock("defaulted", 0)
	if l.timeout != DefaultLockTimeout {
		t.Fatalf("timeout = %v, want %v", l.timeout, DefaultLockTimeout)
	}
}
