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
	"time"

	"github.com/ParkerTenBroeck/SRTMT/internal/log"
	"github.com/emirpasic/gods/queues/priorityqueue"
)

const (
	defaultFallbackQuantum = 500
	defaultTargetSlice     = 200 * time.Microsecond

	averageWindow = 150
)

// Entry is the scheduler's record of a live task.
type Entry struct {
	ID       TaskID
	LastRan  time.Time
	SleepFor time.Duration // delay requested by the current slice, if any
	seq      uint64
}

// Available returns the time from which the task may run again.
func (e *Entry) Available() time.Time {
	return e.LastRan.Add(e.SleepFor)
}

// rollingAverage is an integer running mean whose sample count is capped so
// that recent samples keep their weight.
type rollingAverage struct {
	avg   int64
	count int64
}

func (a *rollingAverage) roll(v int64) {
	if a.count < averageWindow {
		a.count++
	}
	a.avg += (v - a.avg) / a.count
}

// Scheduler orders live tasks by the time they become available to run,
// earliest first, and sizes each slice so that it takes roughly a fixed
// amount of wall time.
type Scheduler struct {
	ready   *priorityqueue.Queue
	removed map[TaskID]struct{}
	seq     uint64

	instructions rollingAverage // instructions per slice
	sliceTime    rollingAverage // wall time per slice, ns
	roundTime    rollingAverage // wall time between two calls to Next, ns
	lastNext     time.Time

	iterations uint64

	fallback uint32
	target   time.Duration
	now      func() time.Time
	sleep    func(time.Duration)
}

func byAvailability(a, b interface{}) int {
	ea, eb := a.(*Entry), b.(*Entry)
	ta, tb := ea.Available(), eb.Available()
	switch {
	case ta.Before(tb):
		return -1
	case tb.Before(ta):
		return 1
	case ea.seq < eb.seq:
		return -1
	case ea.seq > eb.seq:
		return 1
	}
	return 0
}

// NewScheduler returns an empty scheduler using the wall clock.
func NewScheduler() *Scheduler {
	return &Scheduler{
		ready:    priorityqueue.NewWith(byAvailability),
		removed:  make(map[TaskID]struct{}),
		fallback: defaultFallbackQuantum,
		target:   defaultTargetSlice,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

func (s *Scheduler) push(e *Entry) {
	s.seq++
	e.seq = s.seq
	s.ready.Enqueue(e)
}

// Add makes a new task immediately eligible to run.
func (s *Scheduler) Add(id TaskID) {
	s.push(&Entry{ID: id})
}

// Remove marks id for removal. The entry is dropped the next time it is popped
// or reported, and is never returned by Next again.
func (s *Scheduler) Remove(id TaskID) {
	s.removed[id] = struct{}{}
}

// Len returns the number of queued entries, including those marked for
// removal.
func (s *Scheduler) Len() int { return s.ready.Size() }

// Next pops the earliest available task and returns it with its quantum. If
// that task is not available yet, Next sleeps until it is. It returns false
// when no task is left.
func (s *Scheduler) Next() (*Entry, uint32, bool) {
	now := s.now()
	if !s.lastNext.IsZero() {
		s.roundTime.roll(now.Sub(s.lastNext).Nanoseconds())
	}
	s.lastNext = now

	var e *Entry
	for {
		v, ok := s.ready.Dequeue()
		if !ok {
			return nil, 0, false
		}
		e = v.(*Entry)
		if _, gone := s.removed[e.ID]; gone {
			delete(s.removed, e.ID)
			continue
		}
		break
	}

	if at := e.Available(); at.After(now) {
		d := at.Sub(now)
		log.Trace(log.SchedMonitoring, "waiting for task", "task", e.ID, "delay", d)
		s.sleep(d)
		s.lastNext = s.now()
	}
	e.SleepFor = 0
	return e, s.Quantum(), true
}

// Quantum returns the number of instructions expected to run in the target
// slice time, based on recent reports.
func (s *Scheduler) Quantum() uint32 {
	if s.sliceTime.avg <= 0 {
		return s.fallback
	}
	q := s.instructions.avg * s.target.Nanoseconds() / s.sliceTime.avg
	if q <= 0 {
		return s.fallback
	}
	if q > 1<<32-1 {
		q = 1<<32 - 1
	}
	return uint32(q)
}

// Report accounts for a slice of ran instructions that ran between start and
// end. If e is not nil and its task was not removed, it is queued again with
// LastRan set to end, keeping any SleepFor set during the slice.
func (s *Scheduler) Report(e *Entry, ran uint32, start, end time.Time) {
	s.instructions.roll(int64(ran))
	s.sliceTime.roll(end.Sub(start).Nanoseconds())
	s.iterations += uint64(ran)

	if e == nil {
		return
	}
	if _, gone := s.removed[e.ID]; gone {
		delete(s.removed, e.ID)
		return
	}
	e.LastRan = end
	s.push(e)
}

// TotalIterations returns the number of instructions reported so far.
func (s *Scheduler) TotalIterations() uint64 { return s.iterations }

// SchedulerStats is a snapshot of the scheduler's running averages.
type SchedulerStats struct {
	Instructions int64         // per slice
	SliceTime    time.Duration // per slice
	RoundTime    time.Duration // between two scheduling decisions
	Iterations   uint64
}

// Stats returns the current running averages.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Instructions: s.instructions.avg,
		SliceTime:    time.Duration(s.sliceTime.avg),
		RoundTime:    time.Duration(s.roundTime.avg),
		Iterations:   s.iterations,
	}
}
