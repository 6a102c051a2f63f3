package services

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartScheduler_RegistersJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var indexed atomic.Int32
	sched, err := StartScheduler(ctx, ScheduleConfig{
		DailyHour:     0,
		DailyMinute:   5,
		IndexInterval: 20 * time.Millisecond,
	}, env.Distributor, func(context.Context) {}, func(context.Context) { indexed.Add(1) })
	require.NoError(t, err)
	defer func() { require.NoError(t, sched.Shutdown()) }()

	var names []string
	for _, j := range sched.Jobs() {
		names = append(names, j.Name())
	}
	sort.Strings(names)
	// verify has no interval, so it is left out
	assert.Equal(t, []string{"daily-staking-distribution", "stake-balance-sync"}, names)

	assert.Eventually(t, func() bool { return indexed.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}
