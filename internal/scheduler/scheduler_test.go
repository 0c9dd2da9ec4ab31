package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopJob struct{ name string }

func (j noopJob) Run() error   { return nil }
func (j noopJob) Name() string { return j.name }

func TestScheduler_AddJobValidatesSpec(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a cron spec", noopJob{name: "broken"})
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())

	require.NoError(t, s.AddJob("0 0 3 * * *", noopJob{name: "nightly"}))
	assert.Equal(t, []string{"nightly"}, s.Jobs())
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", noopJob{name: "hourly"}))

	s.Start()
	s.Stop()
}
