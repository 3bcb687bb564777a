package buffersize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateSmallFileFloor(t *testing.T) {
	s := WithMemory(8 * 1024 * 1024 * 1024) // 8 GiB, plenty of headroom
	assert.Equal(t, 1*1024*1024, s.Calculate(100, false))
	assert.Equal(t, 1*1024*1024, s.Calculate(9*1024*1024, true))
}

func TestCalculateMediumBase(t *testing.T) {
	s := WithMemory(8 * 1024 * 1024 * 1024)
	assert.Equal(t, 4*1024*1024, s.Calculate(50*1024*1024, false))
	assert.Equal(t, 8*1024*1024, s.Calculate(50*1024*1024, true))
}

func TestCalculateRampCapsAt16MiB(t *testing.T) {
	s := WithMemory(8 * 1024 * 1024 * 1024)
	assert.Equal(t, 16*1024*1024, s.Calculate(2*1024*1024*1024, true))
	assert.Equal(t, 16*1024*1024, s.Calculate(2*1024*1024*1024, false))
}

func TestCalculateRampIsMonotonic(t *testing.T) {
	s := WithMemory(8 * 1024 * 1024 * 1024)
	prev := s.Calculate(100*1024*1024, true)
	for _, sz := range []int64{200 * 1024 * 1024, 400 * 1024 * 1024, 800 * 1024 * 1024, 1000 * 1024 * 1024} {
		cur := s.Calculate(sz, true)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestCalculateMemoryCap(t *testing.T) {
	// 1 MiB of free memory -> 10% = ~104857 bytes, below the 1 MiB small
	// file floor, but never below the 8 KiB absolute floor.
	s := WithMemory(1024 * 1024)
	got := s.Calculate(500, false)
	assert.GreaterOrEqual(t, got, 8*1024)
	assert.LessOrEqual(t, got, 1024*1024/10+1)
}

func TestCalculateNeverBelowFloor(t *testing.T) {
	s := WithMemory(1024) // essentially no memory
	got := s.Calculate(500, false)
	assert.Equal(t, 8*1024, got)
}
