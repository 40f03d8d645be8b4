package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func drain[T any](rc *RingChannel[T]) []T {
	var out []T
	for v := range rc.C() {
		out = append(out, v)
	}
	return out
}

func TestRingChannel_OverwritesOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	assert.Equal(t, 3, rc.Len())
	rc.Close()

	assert.Equal(t, []int{7, 8, 9}, drain(rc))
	assert.Equal(t, Stats{Written: 10, Overwritten: 7}, rc.Stats())
}

func TestRingChannel_SendReportsDrop(t *testing.T) {
	rc := New[string](1)

	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"), "Send MUST report the dropped element")
}

func TestRingChannel_SendAfterClose(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	assert.False(t, rc.Send(2))
	assert.Equal(t, []int{1}, drain(rc))
	assert.EqualValues(t, 1, rc.Stats().Rejected)
}

func TestRingChannel_InvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}

func TestRingChannel_ConcurrentProducers(t *testing.T) {
	rc := New[int](4)
	var wg sync.WaitGroup

	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()
	rc.Close()

	assert.Len(t, drain(rc), 4)
	st := rc.Stats()
	assert.EqualValues(t, 800, st.Written)
	assert.EqualValues(t, 796, st.Overwritten)
}
