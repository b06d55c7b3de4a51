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
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/ParkerTenBroeck/SRTMT/internal/log"
	"github.com/pkg/errors"
)

// Syscall ids. Arguments are read from $a0 and $a1, results are written to
// $v0 and $v1.
const (
	SysExit             = 0
	SysPrintInt         = 1
	SysPrintCString     = 4
	SysPrintChar        = 5
	SysSleepMillis      = 50
	SysSleepDeltaMillis = 51
	SysTimeNow          = 60
	SysRandom           = 99
	SysSpawn            = 100
	SysSleepNanos       = 101
	SysYield            = 102
	SysFutexWake        = 200
	SysFutexWait        = 201
)

// BreakDebugger is the only breakpoint id with a handler.
const BreakDebugger = 534

// Call is a decoded syscall with its typed arguments.
type Call interface {
	CallID() uint32
}

// Syscall variants.
type (
	// ExitCall terminates the task with code 0.
	ExitCall struct{}
	// PrintIntCall prints a signed decimal integer.
	PrintIntCall struct{ Value int32 }
	// PrintCStringCall prints the zero terminated UTF-8 string at Addr.
	PrintCStringCall struct{ Addr uint32 }
	// PrintCharCall buffers one byte of output until a newline.
	PrintCharCall struct{ Char byte }
	// SleepMillisCall blocks the task for Millis milliseconds.
	SleepMillisCall struct{ Millis uint32 }
	// SleepDeltaMillisCall blocks the task for Millis milliseconds minus the
	// time elapsed since the end of its previous SleepDeltaMillisCall.
	SleepDeltaMillisCall struct{ Millis uint32 }
	// TimeNowCall returns the wall clock in nanoseconds since the Unix epoch.
	TimeNowCall struct{}
	// RandomCall returns a random integer in [Low, High].
	RandomCall struct{ Low, High int32 }
	// SpawnCall starts a task at Entry with Arg in $a0.
	SpawnCall struct{ Entry, Arg uint32 }
	// SleepNanosCall blocks the task for Duration.
	SleepNanosCall struct{ Duration time.Duration }
	// YieldCall ends the slice.
	YieldCall struct{}
	// FutexWakeCall wakes up to Count tasks waiting on Addr.
	FutexWakeCall struct{ Addr, Count uint32 }
	// FutexWaitCall waits on Addr while it holds Cond.
	FutexWaitCall struct{ Addr, Cond uint32 }
)

func (ExitCall) CallID() uint32             { return SysExit }
func (PrintIntCall) CallID() uint32         { return SysPrintInt }
func (PrintCStringCall) CallID() uint32     { return SysPrintCString }
func (PrintCharCall) CallID() uint32        { return SysPrintChar }
func (SleepMillisCall) CallID() uint32      { return SysSleepMillis }
func (SleepDeltaMillisCall) CallID() uint32 { return SysSleepDeltaMillis }
func (TimeNowCall) CallID() uint32          { return SysTimeNow }
func (RandomCall) CallID() uint32           { return SysRandom }
func (SpawnCall) CallID() uint32            { return SysSpawn }
func (SleepNanosCall) CallID() uint32       { return SysSleepNanos }
func (YieldCall) CallID() uint32            { return SysYield }
func (FutexWakeCall) CallID() uint32        { return SysFutexWake }
func (FutexWaitCall) CallID() uint32        { return SysFutexWait }

// DecodeCall reads the arguments of call id from r. An unknown id yields an
// InvalidOperation *Fault wrapping ErrInvalidCall.
func DecodeCall(id uint32, r *Registers) (Call, error) {
	a, b := r.R[RegA0], r.R[RegA1]
	switch id {
	case SysExit:
		return ExitCall{}, nil
	case SysPrintInt:
		return PrintIntCall{Value: int32(a)}, nil
	case SysPrintCString:
		return PrintCStringCall{Addr: a}, nil
	case SysPrintChar:
		return PrintCharCall{Char: byte(a)}, nil
	case SysSleepMillis:
		return SleepMillisCall{Millis: a}, nil
	case SysSleepDeltaMillis:
		return SleepDeltaMillisCall{Millis: a}, nil
	case SysTimeNow:
		return TimeNowCall{}, nil
	case SysRandom:
		return RandomCall{Low: int32(a), High: int32(b)}, nil
	case SysSpawn:
		return SpawnCall{Entry: a, Arg: b}, nil
	case SysSleepNanos:
		ns := uint64(a) | uint64(b)<<32
		if ns > math.MaxInt64 {
			ns = math.MaxInt64
		}
		return SleepNanosCall{Duration: time.Duration(ns)}, nil
	case SysYield:
		return YieldCall{}, nil
	case SysFutexWake:
		return FutexWakeCall{Addr: a, Count: b}, nil
	case SysFutexWait:
		return FutexWaitCall{Addr: a, Cond: b}, nil
	}
	return nil, invalidCall(id)
}

// Syscall implements Host.
func (s *System) Syscall(id uint32, t *Task, m *Memory) (CallResult, error) {
	c, err := DecodeCall(id, &t.Registers)
	if err != nil {
		return CallContinue, err
	}
	log.Trace(log.SystemMonitoring, "syscall", "task", t.id, "id", id, "call", c)
	res, err := s.dispatch(c, t, m)
	if err != nil && s.malformed == MalformedIgnore && errors.Is(err, ErrMalformedCallArgs) {
		log.Warn(log.SystemMonitoring, "ignoring malformed call", "task", t.id, "pc", hex32(t.PC-4), "err", err)
		return CallContinue, nil
	}
	return res, err
}

func (s *System) dispatch(c Call, t *Task, m *Memory) (CallResult, error) {
	r := &t.Registers
	switch c := c.(type) {
	case ExitCall:
		return CallExit, nil
	case PrintIntCall:
		s.print(t, strconv.Itoa(int(c.Value)))
	case PrintCStringCall:
		b, addr, ok := m.CString(c.Addr)
		if !ok {
			return CallContinue, &Fault{Kind: MemoryDoesNotExist, Addr: addr}
		}
		if !utf8.Valid(b) {
			return CallContinue, errors.Wrapf(ErrMalformedCallArgs, "string at %#08x is not valid UTF-8", c.Addr)
		}
		s.print(t, string(b))
	case PrintCharCall:
		t.out = append(t.out, c.Char)
		if c.Char == '\n' {
			s.print(t, string(t.out))
			t.out = t.out[:0]
		}
	case TimeNowCall:
		ns := uint64(s.now().UnixNano())
		r.R[RegV0], r.R[RegV1] = uint32(ns), uint32(ns>>32)
	case SleepMillisCall:
		s.sleepCurrent(time.Duration(c.Millis) * time.Millisecond)
		return CallWait, nil
	case SleepDeltaMillisCall:
		now := s.now().UnixNano()
		d := time.Duration(c.Millis) * time.Millisecond
		if t.lastDelta != 0 {
			d -= time.Duration(now - t.lastDelta)
		}
		if d < 0 {
			d = 0
		}
		t.lastDelta = now + int64(d)
		s.sleepCurrent(d)
		return CallWait, nil
	case SleepNanosCall:
		s.sleepCurrent(c.Duration)
		return CallWait, nil
	case YieldCall:
		return CallWait, nil
	case RandomCall:
		if c.Low > c.High {
			return CallContinue, errors.Wrapf(ErrMalformedCallArgs, "random range [%d, %d] is empty", c.Low, c.High)
		}
		span := uint64(int64(c.High)-int64(c.Low)) + 1
		r.R[RegV0] = uint32(int64(c.Low) + int64(s.rng.Uint64n(span)))
	case SpawnCall:
		if s.pending != nil {
			return CallRetry, nil
		}
		child := s.spawn(t, c)
		r.R[RegV0] = uint32(child.id)
		s.pending = child
	case FutexWakeCall, FutexWaitCall:
		return CallContinue, errors.Wrapf(ErrNotImplemented, "futex call %d", c.CallID())
	default:
		return CallContinue, invalidCall(c.CallID())
	}
	return CallContinue, nil
}

// spawn builds a task sharing the first mapped page of parent, with a fresh
// stack page at 0x7FFF.
func (s *System) spawn(parent *Task, c SpawnCall) *Task {
	child := NewTask(s.newID(), parent.pid)
	child.Map(parent.Mapping[0].Page, parent.Mapping[0].VPN)
	stack := s.store.NewPage()
	child.Map(stack, stackVPN)
	stack.Release()
	child.PC = c.Entry
	child.R[RegA0] = c.Arg
	child.R[RegGP] = parent.R[RegGP]
	child.R[RegSP] = initialSP
	child.R[RegRA] = returnSentinel
	return child
}

// Breakpoint implements Host.
func (s *System) Breakpoint(id uint32, t *Task, _ *Memory) (CallResult, error) {
	if id != BreakDebugger {
		return CallContinue, invalidCall(id)
	}
	log.Debug(log.TaskMonitoring, "breakpoint", "task", t.id, "state", "\n"+t.Tree().String())
	return CallContinue, nil
}

// print sends text to the sink, keyed by the task id. Sink errors are logged
// and do not affect the task.
func (s *System) print(t *Task, text string) {
	if err := s.out.Print(t.id, text); err != nil {
		log.Error(log.OutputMonitoring, "output failed", "task", t.id, "err", err)
	}
}

// sleepCurrent delays the next slice of the running task by d.
func (s *System) sleepCurrent(d time.Duration) {
	if s.current != nil {
		s.current.SleepFor = d
	}
}
