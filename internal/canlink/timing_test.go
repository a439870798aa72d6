package canlink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kstaniek/go-can-logger/internal/config"
)

func TestPrescaler(t *testing.T) {
	cases := []struct {
		kbps int
		want int
	}{
		{1000, 7},
		{500, 4},
		{250, 2},
		{125, 1},
		{100, 1},
		{50, 1},
		{10, 1},
		{1, 1},
		{0, 1},
		{200000, maxPrescaler},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Prescaler(c.kbps), "kbps=%d", c.kbps)
	}
}

func TestTimingBTR(t *testing.T) {
	cfg := config.Default()
	cfg.BitrateKbps = 500
	tm := NewTiming(&cfg)
	assert.True(t, tm.Silent, "ack disabled by default")
	btr := tm.BTR()
	assert.Equal(t, uint32(3), btr&btrBRPMask, "BRP field")
	assert.Equal(t, uint32(1), btr>>btrTS1Pos&0xF, "TS1 field")
	assert.Equal(t, uint32(2), btr>>btrTS2Pos&0x7, "TS2 field")
	assert.Equal(t, uint32(0), btr>>btrSJWPos&0x3, "SJW field")
	assert.NotZero(t, btr&btrSILM)
	assert.Zero(t, btr&(1<<30), "loopback bit")
	assert.Equal(t, uint32(0x80210003), btr)

	cfg.AckEnabled = true
	assert.Equal(t, uint32(0x00210003), NewTiming(&cfg).BTR())
	assert.Equal(t, uint32(500000), NewTiming(&cfg).BitrateBps())
}

func TestTimingFromHugeBaud(t *testing.T) {
	cfg, err := config.Parse([]byte("baud 4294968\n"))
	assert.NoError(t, err)
	tm := NewTiming(cfg)
	assert.Equal(t, uint32(1000000), tm.BitrateBps())
	assert.Equal(t, 7, tm.Prescaler)
}
