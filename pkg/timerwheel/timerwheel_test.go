package timerwheel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArmFires(t *testing.T) {
	w := New(time.Millisecond, nil)
	w.Start()
	defer w.Stop()

	var fired int32
	done := make(chan struct{})
	w.Arm(5*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestCancelPreventsFire(t *testing.T) {
	w := New(time.Millisecond, nil)
	w.Start()
	defer w.Stop()

	var fired int32
	h := w.Arm(20*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	w.Cancel(h)

	time.Sleep(40 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestRearmFromCallback(t *testing.T) {
	w := New(time.Millisecond, nil)
	w.Start()
	defer w.Stop()

	var count int32
	done := make(chan struct{})
	var cb func()
	cb = func() {
		n := atomic.AddInt32(&count, 1)
		if n < 3 {
			w.Arm(2*time.Millisecond, cb)
			return
		}
		close(done)
	}
	w.Arm(2*time.Millisecond, cb)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-arm chain did not complete")
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&count))
}
