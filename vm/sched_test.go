// This file is part of SRTMT - https://github.com/ParkerTenBroeck/SRTMT
//
// Copyright 2023 The SRTMT Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package vm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now   time.Time
	slept time.Duration
}

func testScheduler() (*Scheduler, *clock) {
	c := &clock{now: time.Unix(1000, 0)}
	s := NewScheduler()
	s.now = func() time.Time { return c.now }
	s.sleep = func(d time.Duration) { c.slept += d; c.now = c.now.Add(d) }
	return s, c
}

func TestScheduler_order(t *testing.T) {
	s, c := testScheduler()
	_, _, ok := s.Next()
	assert.False(t, ok)

	for id := TaskID(1); id <= 3; id++ {
		s.Add(id)
	}
	var order []TaskID
	for i := 0; i < 6; i++ {
		e, q, ok := s.Next()
		require.True(t, ok)
		assert.Equal(t, uint32(defaultFallbackQuantum), q)
		order = append(order, e.ID)
		s.Report(e, 10, c.now, c.now)
	}
	assert.Equal(t, []TaskID{1, 2, 3, 1, 2, 3}, order)
	assert.Equal(t, uint64(60), s.TotalIterations())
	assert.Zero(t, c.slept)
}

func TestScheduler_remove(t *testing.T) {
	s, c := testScheduler()
	s.Add(1)
	s.Add(2)
	s.Remove(1)
	assert.Equal(t, 2, s.Len())

	e, _, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, TaskID(2), e.ID)

	// removed while running
	s.Remove(2)
	s.Report(e, 5, c.now, c.now)
	_, _, ok = s.Next()
	assert.False(t, ok)
	assert.Empty(t, s.removed)
}

func TestScheduler_sleep(t *testing.T) {
	s, c := testScheduler()
	s.Add(1)
	s.Add(2)

	e, _, _ := s.Next()
	require.Equal(t, TaskID(1), e.ID)
	e.SleepFor = 50 * time.Millisecond
	s.Report(e, 1, c.now, c.now)

	e, _, _ = s.Next()
	require.Equal(t, TaskID(2), e.ID)
	e.SleepFor = 20 * time.Millisecond
	s.Report(e, 1, c.now, c.now)

	e, _, _ = s.Next()
	assert.Equal(t, TaskID(2), e.ID)
	assert.Equal(t, 20*time.Millisecond, c.slept)
	assert.Zero(t, e.SleepFor)
	e.SleepFor = 100 * time.Millisecond
	s.Report(e, 1, c.now, c.now)

	e, _, _ = s.Next()
	assert.Equal(t, TaskID(1), e.ID)
	assert.Equal(t, 50*time.Millisecond, c.slept)
}

func TestScheduler_quantum(t *testing.T) {
	s, c := testScheduler()
	assert.Equal(t, uint32(defaultFallbackQuantum), s.Quantum())

	start := c.now
	s.Report(nil, 1000, start, start.Add(100*time.Microsecond))
	// 1000 instructions in 100µs, target 200µs
	assert.Equal(t, uint32(2000), s.Quantum())

	s.target = time.Nanosecond
	s.Report(nil, 0, start, start.Add(time.Second))
	assert.Equal(t, uint32(defaultFallbackQuantum), s.Quantum())

	st := s.Stats()
	assert.Equal(t, uint64(1000), st.Iterations)
	assert.Equal(t, int64(500), st.Instructions)
}

func TestRollingAverage(t *testing.T) {
	var a rollingAverage
	for i := 0; i < 2*averageWindow; i++ {
		a.roll(10)
	}
	assert.Equal(t, int64(10), a.avg)
	assert.Equal(t, int64(averageWindow), a.count)

	// recent samples keep their weight
	a.roll(10 + averageWindow*100)
	assert.Equal(t, int64(110), a.avg)
}
