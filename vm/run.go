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
	"context"

	"github.com/ParkerTenBroeck/SRTMT/internal/log"
	"github.com/pkg/errors"
)

// Step schedules and runs one slice. It returns false once no task is left.
// A task fault is handled here and never returned; the error is only set when
// the host itself failed.
func (s *System) Step() (bool, error) {
	e, quantum, ok := s.sched.Next()
	if !ok {
		return false, nil
	}
	t, ok := s.pool.Get(e.ID)
	if !ok {
		return false, errors.Errorf("scheduled task %d is not in the pool", e.ID)
	}
	log.Trace(log.SchedMonitoring, "slice", "task", t.id, "quantum", quantum)

	s.current = e
	start := s.now()
	o, err := s.slice(t, quantum)
	end := s.now()
	s.current = nil

	if s.pending != nil {
		s.AddTask(s.pending)
		s.pending = nil
	}

	if err != nil {
		var f *Fault
		if !errors.As(err, &f) {
			return false, err
		}
		s.fault(t, f)
		s.sched.Report(nil, f.Ran, start, end)
		return true, nil
	}
	if o.Status == StatusExit {
		s.flush(t)
		s.pool.Remove(t.id)
		log.Info(log.TaskMonitoring, "task exited", "task", t.id, "code", 0)
		e = nil
	}
	s.sched.Report(e, o.Ran, start, end)
	return true, nil
}

// slice runs t for at most n instructions with its pages mapped. Panics are
// recovered and returned as errors.
func (s *System) slice(t *Task, n uint32) (o Outcome, err error) {
	defer func() {
		if e := recover(); e != nil {
			switch e := e.(type) {
			case error:
				err = errors.Wrapf(e, "recovered error in task %d @pc=%#08x", t.id, t.PC)
			default:
				err = errors.Errorf("recovered panic in task %d @pc=%#08x: %v", t.id, t.PC, e)
			}
		}
	}()
	s.mem.Mapped(t, &s.ll, func(t *Task, m *Memory) {
		o, err = t.Run(s, m, n)
	})
	return o, err
}

func (s *System) fault(t *Task, f *Fault) {
	log.Error(log.TaskMonitoring, "task faulted", "task", t.id, "fault", f, "state", "\n"+t.Tree().String())
	if s.onFault != nil {
		s.onFault(t, f)
	}
	s.flush(t)
	s.pool.Remove(t.id)
}

// flush prints output a task buffered without a trailing newline.
func (s *System) flush(t *Task) {
	if len(t.out) > 0 {
		s.print(t, string(t.out))
		t.out = nil
	}
}

// Run runs tasks until none is left or ctx is done, and returns the total
// number of instructions executed. Cancellation is checked between slices.
func (s *System) Run(ctx context.Context) (uint64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s.TotalIterations(), err
		}
		more, err := s.Step()
		if err != nil {
			return s.TotalIterations(), err
		}
		if !more {
			return s.TotalIterations(), nil
		}
	}
}

// RunBlocking runs tasks until the scheduler has nothing left to run and
// returns the total number of instructions executed. A host error is logged
// and stops the run.
func (s *System) RunBlocking() uint64 {
	n, err := s.Run(context.Background())
	if err != nil {
		log.Error(log.SystemMonitoring, "run stopped", "err", err)
	}
	return n
}
