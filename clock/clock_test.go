package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_After(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	fired := <-fake.After(10 * time.Second)
	assert.Equal(t, start.Add(10*time.Second), fired)

	fake.Advance(5 * time.Second)
	<-fake.After(20 * time.Second)
	assert.Equal(t, start.Add(35*time.Second), fake.Now())
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, fake.Waits())
}

func TestFake_Freeze(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	fake.Freeze()
	select {
	case <-fake.After(time.Second):
		t.Fatalf("expected frozen clock not to fire")
	default:
	}
	assert.Equal(t, time.Unix(0, 0), fake.Now())
}
