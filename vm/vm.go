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
	"strings"
	"time"

	"github.com/ParkerTenBroeck/SRTMT/internal/log"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
)

const (
	stackVPN       = 0x7FFF
	initialSP      = 0x80000000
	returnSentinel = 0xFFFFFFFF
)

// Policy selects what happens to a task that passes malformed arguments to a
// call.
type Policy uint8

// Malformed argument policies.
const (
	MalformedKill   Policy = iota // fault the task
	MalformedIgnore               // log a warning and continue after the call
)

// ParsePolicy parses "kill" or "ignore".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "kill", "":
		return MalformedKill, nil
	case "ignore":
		return MalformedIgnore, nil
	}
	return 0, errors.Errorf("unknown malformed argument policy %q", s)
}

func (p Policy) String() string {
	if p == MalformedIgnore {
		return "ignore"
	}
	return "kill"
}

// System owns the tasks, pages and scheduler of a VM and services the calls
// its tasks make.
type System struct {
	pool  *TaskPool
	sched *Scheduler
	store *PageStore
	mem   *Memory
	ll    bool // reservation flag, swapped into mem for each slice

	lastID  TaskID
	pending *Task  // task spawned during the current slice
	current *Entry // scheduler entry of the running task

	out       Sink
	rng       *rand.Rand
	malformed Policy
	onFault   func(t *Task, f *Fault)
	now       func() time.Time
}

// Option interface
type Option func(*System) error

// Output sets the sink that receives task output. The default logs it.
func Output(sink Sink) Option {
	return func(s *System) error {
		if sink == nil {
			return errors.New("nil output sink")
		}
		s.out = sink
		return nil
	}
}

// PageFill sets the byte pages are reset to when handed out. The default is
// 0; 0xdb makes reads of uninitialized memory easy to spot.
func PageFill(b byte) Option {
	return func(s *System) error {
		s.store.mu.Lock()
		s.store.fill = b
		s.store.mu.Unlock()
		return nil
	}
}

// FallbackQuantum sets the slice length used until the scheduler has timing
// data. The default is 500 instructions.
func FallbackQuantum(n uint32) Option {
	return func(s *System) error {
		if n == 0 {
			return errors.New("fallback quantum must be positive")
		}
		s.sched.fallback = n
		return nil
	}
}

// TargetSlice sets the wall time the scheduler aims each slice at. The
// default is 200µs.
func TargetSlice(d time.Duration) Option {
	return func(s *System) error {
		if d <= 0 {
			return errors.Errorf("invalid target slice %v", d)
		}
		s.sched.target = d
		return nil
	}
}

// MalformedArgs sets the policy for calls with malformed arguments. The
// default is MalformedKill.
func MalformedArgs(p Policy) Option {
	return func(s *System) error { s.malformed = p; return nil }
}

// OnFault sets a function called with every task killed by a fault, before
// the task is removed.
func OnFault(fn func(t *Task, f *Fault)) Option {
	return func(s *System) error { s.onFault = fn; return nil }
}

// Clock replaces the wall clock and the sleep function used by the system
// and its scheduler.
func Clock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(s *System) error {
		if now == nil || sleep == nil {
			return errors.New("nil clock function")
		}
		s.now = now
		s.sched.now = now
		s.sched.sleep = sleep
		return nil
	}
}

// RandomSeed seeds the generator behind the random call.
func RandomSeed(seed uint64) Option {
	return func(s *System) error {
		s.rng = rand.New(rand.NewSource(seed))
		return nil
	}
}

// SetOptions sets the provided options.
func (s *System) SetOptions(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}
	return nil
}

// New creates a System with no task. Options will be set by calling
// SetOptions.
func New(opts ...Option) (*System, error) {
	s := &System{
		pool:  NewTaskPool(),
		sched: NewScheduler(),
		store: NewPageStore(0),
		mem:   NewMemory(),
		out:   LogSink(),
		rng:   rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
		now:   time.Now,
	}
	if err := s.SetOptions(opts...); err != nil {
		return nil, err
	}
	return s, nil
}

// Pool returns the task pool.
func (s *System) Pool() *TaskPool { return s.pool }

// Scheduler returns the scheduler.
func (s *System) Scheduler() *Scheduler { return s.sched }

// Store returns the page store.
func (s *System) Store() *PageStore { return s.store }

// TotalIterations returns the number of instructions executed so far.
func (s *System) TotalIterations() uint64 { return s.sched.TotalIterations() }

func (s *System) newID() TaskID {
	s.lastID++
	return s.lastID
}

// AddTask adds t to the pool and makes it eligible to run.
func (s *System) AddTask(t *Task) {
	s.pool.Add(t)
	s.sched.Add(t.id)
	log.Info(log.TaskMonitoring, "task created", "task", t.id, "process", t.pid, "pc", hex32(t.PC))
}

// Kill removes a task that is not currently running.
func (s *System) Kill(id TaskID) {
	if t, ok := s.pool.Get(id); ok {
		s.flush(t)
	}
	s.pool.Remove(id)
	s.sched.Remove(id)
}

// Load creates the first task of a new process from a binary image: the image
// is copied to a fresh page at virtual page 0, a stack page is mapped at
// 0x7FFF and execution starts at address 0.
func (s *System) Load(image []byte) (*Task, error) {
	if len(image) > PageSize {
		return nil, errors.Errorf("image too large: %d bytes, max %d", len(image), PageSize)
	}
	id := s.newID()
	t := NewTask(id, ProcessID(id))

	code := s.store.NewPage()
	code.Write(0, image)
	t.Map(code, 0)
	code.Release()

	stack := s.store.NewPage()
	t.Map(stack, stackVPN)
	stack.Release()

	t.R[RegSP] = initialSP
	t.R[RegRA] = returnSentinel
	s.AddTask(t)
	return t, nil
}
