package ring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewRejectsBadCapacity(t *testing.T) {
	for _, c := range []int{-4, 0, 1, 3, 100, 4095} {
		_, err := New[int16](c)
		assert.ErrorIs(t, err, ErrCapacity, "capacity %d", c)
	}

	r, err := New[int16](4096)
	require.NoError(t, err)
	assert.Equal(t, 4095, r.Cap())
}

func TestPutThenGet(t *testing.T) {
	r, err := New[int16](8)
	require.NoError(t, err)

	require.NoError(t, r.Put(-1234))
	assert.Equal(t, 1, r.Len())

	v, err := r.Get()
	require.NoError(t, err)
	assert.Equal(t, int16(-1234), v)
	assert.Equal(t, 0, r.Len())
}

func TestGetBlocksUntilPut(t *testing.T) {
	r, err := New[byte](16)
	require.NoError(t, err)

	got := make(chan byte)
	go func() {
		v, err := r.Get()
		assert.NoError(t, err)
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Get returned on an empty ring")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, r.Put(0xAB))
	select {
	case v := <-got:
		assert.Equal(t, byte(0xAB), v)
	case <-time.After(time.Second):
		t.Fatal("Get did not wake after Put")
	}
}

func TestWrapAroundKeepsOrder(t *testing.T) {
	r, err := New[int](4)
	require.NoError(t, err)

	next := 0
	for round := 0; round < 10; round++ {
		for i := 0; i < r.Cap(); i++ {
			require.NoError(t, r.Put(next+i))
		}
		for i := 0; i < r.Cap(); i++ {
			v, err := r.Get()
			require.NoError(t, err)
			assert.Equal(t, next+i, v)
		}
		next += r.Cap()
	}
}

func TestOverflowIsCounted(t *testing.T) {
	r, err := New[int](4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Put(i))
	}
	assert.ErrorIs(t, r.Put(99), ErrOverflow)
	assert.ErrorIs(t, r.Put(100), ErrOverflow)
	assert.Equal(t, uint64(2), r.Overflows())

	// the dropped items never show up
	assert.Equal(t, []int{0, 1, 2}, r.Drain(nil))
}

func TestPutBatchPartial(t *testing.T) {
	r, err := New[int16](8)
	require.NoError(t, err)

	n, err := r.PutBatch([]int16{1, 2, 3, 4, 5, 6, 7, 8, 9})
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, 7, n)
	assert.Equal(t, uint64(2), r.Overflows())
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6, 7}, r.Drain(nil))
}

func TestNewFilledSentinel(t *testing.T) {
	r, err := NewFilled[byte](4, 0xED)
	require.NoError(t, err)
	for _, v := range r.buf {
		assert.Equal(t, byte(0xED), v)
	}
	assert.Equal(t, 0, r.Len())
}

func TestCloseWakesWaiters(t *testing.T) {
	r, err := New[int](8)
	require.NoError(t, err)

	errs := make(chan error, 2)
	go func() {
		_, err := r.Get()
		errs <- err
	}()
	go func() {
		errs <- r.Wait()
	}()

	time.Sleep(20 * time.Millisecond)
	r.Close()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("waiter stranded after Close")
		}
	}
	assert.ErrorIs(t, r.Put(1), ErrClosed)
}

func TestCloseDrainsRemaining(t *testing.T) {
	r, err := New[int](8)
	require.NoError(t, err)
	require.NoError(t, r.Put(7))
	r.Close()

	v, err := r.Get()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = r.Get()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGetContextCancel(t *testing.T) {
	r, err := New[int](8)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = r.GetContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, r.Put(5))
	v, err := r.GetContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestWaitSpace(t *testing.T) {
	r, err := New[int](8)
	require.NoError(t, err)
	n, err := r.PutBatch([]int{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.Equal(t, 6, n)

	// room for one, not three
	require.NoError(t, r.WaitSpace(context.Background(), 1))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.WaitSpace(ctx, 3), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- r.WaitSpace(context.Background(), 3) }()
	select {
	case <-done:
		t.Fatal("WaitSpace returned before space was freed")
	case <-time.After(20 * time.Millisecond):
	}
	_, err = r.Get()
	require.NoError(t, err)
	_, err = r.Get()
	require.NoError(t, err)
	require.NoError(t, <-done)

	// more than the ring can ever hold waits for an empty ring
	go func() { done <- r.WaitSpace(context.Background(), 100) }()
	assert.Equal(t, []int{3, 4, 5, 6}, r.Drain(nil))
	require.NoError(t, <-done)

	r.Close()
	assert.ErrorIs(t, r.WaitSpace(context.Background(), 1), ErrClosed)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r, err := New[int](64)
	require.NoError(t, err)

	const total = 10000
	go func() {
		for i := 0; i < total; {
			if r.Put(i) == nil {
				i++
			} else {
				time.Sleep(time.Microsecond)
			}
		}
	}()

	for want := 0; want < total; want++ {
		v, err := r.Get()
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
}

func TestRingMatchesQueueModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := 1 << rapid.IntRange(1, 6).Draw(t, "log2cap")
		r, err := New[int](capacity)
		require.NoError(t, err)

		var model []int
		ops := rapid.SliceOfN(rapid.IntRange(-1, 1000), 1, 200).Draw(t, "ops")
		for _, op := range ops {
			if op < 0 {
				if len(model) == 0 {
					continue
				}
				v, err := r.Get()
				require.NoError(t, err)
				require.Equal(t, model[0], v)
				model = model[1:]
				continue
			}
			err := r.Put(op)
			if len(model) == capacity-1 {
				require.ErrorIs(t, err, ErrOverflow)
			} else {
				require.NoError(t, err)
				model = append(model, op)
			}
			require.Equal(t, len(model), r.Len())
		}
	})
}
