package clock_test

import (
	"testing"
	"time"

	// Packages
	clock "github.com/OpenTTD/bananas-api/pkg/clock"
	assert "github.com/stretchr/testify/assert"
)

func Test_Fake_AfterFunc(t *testing.T) {
	assert := assert.New(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	var order []string
	c.AfterFunc(2*time.Minute, func() { order = append(order, "second") })
	c.AfterFunc(time.Minute, func() { order = append(order, "first") })
	stopped := c.AfterFunc(time.Minute, func() { order = append(order, "stopped") })
	assert.Equal(3, c.Pending())
	assert.True(stopped.Stop())
	assert.False(stopped.Stop())

	c.Advance(30 * time.Second)
	assert.Empty(order)
	assert.Equal(start.Add(30*time.Second), c.Now())

	c.Advance(2 * time.Minute)
	assert.Equal([]string{"first", "second"}, order)
	assert.Equal(0, c.Pending())
}

func Test_Real(t *testing.T) {
	assert := assert.New(t)
	c := clock.Real()
	assert.WithinDuration(time.Now(), c.Now(), time.Second)

	done := make(chan struct{})
	timer := c.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(timer.Stop())
}
