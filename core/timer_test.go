package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimerQueueFiresInDeadlineOrder(t *testing.T) {
	var q timerQueue
	var fired []int

	var n1, n2, n3 timerNode
	q.add(&n2, 0, 200, func() { fired = append(fired, 2) })
	q.add(&n1, 0, 100, func() { fired = append(fired, 1) })
	q.add(&n3, 0, 300, func() { fired = append(fired, 3) })

	q.process(50)
	assert.Empty(t, fired)

	q.process(250)
	assert.Equal(t, []int{1, 2}, fired)

	q.process(1000)
	assert.Equal(t, []int{1, 2, 3}, fired)
	assert.Zero(t, q.Len())
}

func TestTimerQueueOneShot(t *testing.T) {
	var q timerQueue
	var fired int

	var n timerNode
	q.add(&n, 0, 10, func() { fired++ })
	q.process(20)
	q.process(40)
	assert.Equal(t, 1, fired)
}

func TestTimerQueueRemove(t *testing.T) {
	var q timerQueue
	var fired int

	var n timerNode
	q.add(&n, 0, 10, func() { fired++ })
	assert.True(t, q.remove(&n))
	assert.False(t, q.remove(&n))

	q.process(100)
	assert.Zero(t, fired)
}

func TestTimerQueueRearm(t *testing.T) {
	var q timerQueue
	var fired int

	var n timerNode
	q.add(&n, 0, 10, func() { fired++ })
	q.add(&n, 0, 500, func() { fired += 10 })

	q.process(100)
	assert.Zero(t, fired)

	q.process(600)
	assert.Equal(t, 10, fired)
}

func TestSlotTag(t *testing.T) {
	assert.Equal(t, uint32(0), slotTag(0, 0))
	assert.Equal(t, uint32(1), slotTag(0, 1))
	assert.Equal(t, uint32(14), slotTag(7, 0))
	assert.Equal(t, uint32(15), slotTag(7, 1))
	assert.NotEqual(t, slotTag(7, 0), slotTag(7, 1))
}
