package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/require"
)

func TestDetachedOutlivesAttemptContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	b := rod.New().Context(ctx)
	<-ctx.Done()
	require.ErrorIs(t, b.GetContext().Err(), context.DeadlineExceeded)

	closing, stop := detached(b)
	defer stop()
	require.NoError(t, closing.GetContext().Err())

	deadline, ok := closing.GetContext().Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(closeTimeout), deadline, time.Second)

	// the attempt's browser handle keeps its own context
	require.Error(t, b.GetContext().Err())
}
