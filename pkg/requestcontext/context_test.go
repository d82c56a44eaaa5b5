package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPersonasReturnsCopy(t *testing.T) {
	ctx := WithSession(context.Background(), "sess-1", []string{"acct:alice@example.com"})

	got := Personas(ctx)
	got = append(got, "system.Everyone")
	got[0] = "tampered"

	assert.Equal(t, []string{"acct:alice@example.com"}, Personas(ctx))
	assert.Equal(t, "sess-1", SessionID(ctx))
	assert.True(t, HasSession(ctx))
}

func TestEmptyContextDefaults(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, UserID(ctx))
	assert.Nil(t, Personas(ctx))
	assert.False(t, HasSession(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestWithTime(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
}
