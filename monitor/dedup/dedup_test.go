package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("requests@2.31.0", Key("requests", "2.31.0", false))
	assert.Equal("requests@2.31.0/flagged", Key("requests", "2.31.0", true))
}

func TestMemTrackerBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	tr := NewMemTracker(100, time.Hour)

	ok, err := tr.HasReported(ctx, "a@1.0/flagged")
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(tr.MarkReported(ctx, "a@1.0/flagged"))
	// marking twice is a no-op
	assert.NoError(tr.MarkReported(ctx, "a@1.0/flagged"))

	ok, err = tr.HasReported(ctx, "a@1.0/flagged")
	assert.NoError(err)
	assert.True(ok)

	// the clean-verdict key is independent
	ok, err = tr.HasReported(ctx, "a@1.0")
	assert.NoError(err)
	assert.False(ok)
}

func TestRedisTrackerBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	tr, err := NewRedisTracker("redis://localhost:6379/0", time.Hour)
	if err != nil {
		t.Fail()
	}

	ok, err := tr.HasReported(ctx, "a@1.0/flagged")
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(tr.MarkReported(ctx, "a@1.0/flagged"))
	ok, err = tr.HasReported(ctx, "a@1.0/flagged")
	assert.NoError(err)
	assert.True(ok)
}
