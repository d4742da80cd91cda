package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddValidatesSchedule(t *testing.T) {
	s := New(context.Background(), nil)
	require.NoError(t, s.Add("backup", "0 3 * * *", func(context.Context) error { return nil }))
	assert.Error(t, s.Add("bad", "every day", func(context.Context) error { return nil }))
	assert.Equal(t, 1, s.Len())
}

func TestStartStop(t *testing.T) {
	s := New(context.Background(), nil)
	require.NoError(t, s.Add("noop", "@every 1h", func(context.Context) error { return nil }))
	s.Start()
	s.Stop()
}
