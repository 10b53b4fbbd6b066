package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatch_ArmThenTake(t *testing.T) {
	l := NewLatch()
	assert.True(t, l.Arm("dana"))

	name, pending := l.TakeIfArmed()
	assert.True(t, pending)
	assert.Equal(t, "dana", name)

	_, pending = l.TakeIfArmed()
	assert.False(t, pending, "latch must clear after being taken once")
}

func TestLatch_SecondArmWhilePendingIsCoalesced(t *testing.T) {
	l := NewLatch()
	assert.True(t, l.Arm("dana"))
	assert.False(t, l.Arm("sam"), "a pending request must not be overwritten")

	name, _ := l.TakeIfArmed()
	assert.Equal(t, "dana", name)
}

func TestLatch_TakeWhenUnarmed(t *testing.T) {
	l := NewLatch()
	_, pending := l.TakeIfArmed()
	assert.False(t, pending)
}
