package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIntervalRanges(t *testing.T) {
	d := DefaultIntervalConfig()
	assert.Equal(t, 5*time.Second, d.Interval)
	assert.Equal(t, 60*time.Second, d.MaxInterval)

	for i := 0; i < 200; i++ {
		initial := d.InitialDelay()
		assert.GreaterOrEqual(t, initial, time.Second)
		assert.LessOrEqual(t, initial, 10*time.Second)
		assert.Zero(t, initial%time.Second)

		jitter := d.Jitter()
		assert.GreaterOrEqual(t, jitter, time.Duration(0))
		assert.LessOrEqual(t, jitter, 10*time.Second)
		assert.Zero(t, jitter%time.Second)

		greedy := d.GreedyDelay()
		assert.GreaterOrEqual(t, greedy, 100*time.Millisecond)
		assert.LessOrEqual(t, greedy, 700*time.Millisecond)
	}
}

func TestIntervalConfigWithDefaults(t *testing.T) {
	iv := IntervalConfig{Interval: 2 * time.Second, MaxInterval: time.Second}.withDefaults()
	assert.Equal(t, 2*time.Second, iv.Interval)
	assert.Equal(t, 2*time.Second, iv.MaxInterval)
	assert.NotNil(t, iv.InitialDelay)
	assert.NotNil(t, iv.Jitter)
	assert.NotNil(t, iv.GreedyDelay)

	iv = IntervalConfig{Jitter: Fixed(3 * time.Second)}.withDefaults()
	assert.Equal(t, 5*time.Second, iv.Interval)
	assert.Equal(t, 3*time.Second, iv.Jitter())
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := Config{Name: "accounts-view", Sink: BatchEventSinkFunc(nil)}.withDefaults()
	assert.Equal(t, DefaultMaxRows, cfg.MaxRows)
	assert.NoError(t, cfg.validate())
	assert.Equal(t, []string{}, cfg.typeNames())

	assert.Error(t, Config{Sink: BatchEventSinkFunc(nil)}.validate())
	assert.ErrorIs(t, Config{Name: "x"}.validate(), ErrInvalidSink)
}
