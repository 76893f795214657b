package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowAdmitOnce(t *testing.T) {
	w := NewWindow(10)

	assert.True(t, w.Admit("sig-1"))
	assert.False(t, w.Admit("sig-1"))
	assert.True(t, w.Admit("sig-2"))
	assert.False(t, w.Admit("sig-1"))
	assert.Equal(t, 2, w.Len())
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)

	for i := 0; i < 4; i++ {
		assert.True(t, w.Admit(fmt.Sprintf("sig-%d", i)))
	}

	// sig-0 was evicted when sig-3 entered, so it reads as new again.
	assert.Equal(t, 3, w.Len())
	assert.True(t, w.Admit("sig-0"))
	assert.False(t, w.Admit("sig-2"))
	assert.False(t, w.Admit("sig-3"))
}

func TestWindowRejectsEmptySignature(t *testing.T) {
	w := NewWindow(3)
	assert.False(t, w.Admit(""))
	assert.Equal(t, 0, w.Len())
}

func TestWindowDefaultCapacity(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, DefaultCapacity, w.capacity)
}
