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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage_access(t *testing.T) {
	var p Page
	p.Store32(0x10, 0x11223344)
	assert.Equal(t, uint8(0x44), p.Load8(0x10))
	assert.Equal(t, uint8(0x11), p.Load8(0x13))
	assert.Equal(t, uint16(0x3344), p.Load16(0x10))
	assert.Equal(t, uint16(0x1122), p.Load16(0x12))

	p.Store8(0x11, 0xAA)
	p.Store16(0x12, 0xBBCC)
	assert.Equal(t, uint32(0xBBCCAA44), p.Load32(0x10))

	assert.Equal(t, 4, p.Write(PageSize-4, []byte("abcdefgh")))
	b := make([]byte, 8)
	assert.Equal(t, 2, p.Read(PageSize-2, b))
	assert.Equal(t, "cd", string(b[:2]))
}

func TestPage_concurrentBytes(t *testing.T) {
	var p Page
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i uint16) {
			defer wg.Done()
			for n := 0; n < 1000; n++ {
				p.Store8(i, uint8(n))
			}
		}(uint16(i))
	}
	wg.Wait()
	// no byte store clobbered another one
	assert.Equal(t, uint32(0xE7E7E7E7), p.Load32(0))
}

func TestPageStore(t *testing.T) {
	s := NewPageStore(0)
	a := s.NewPage()
	assert.Equal(t, int32(2), a.Refs())
	a.Write(0, []byte("dirty"))
	b := s.NewPage()
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, s.Free())

	a.Release()
	assert.Equal(t, 1, s.Free())
	c := s.NewPage()
	require.Same(t, a, c)
	assert.Equal(t, uint32(0), c.Load32(0))
	assert.Equal(t, 2, s.Len())

	s = NewPageStore(0xdb)
	p := s.NewPage()
	assert.Equal(t, uint32(0xdbdbdbdb), p.Load32(PageSize-4))
	p.Store32(0, 0)
	p.Release()
	assert.Equal(t, uint32(0xdbdbdbdb), s.NewPage().Load32(0))
}

func TestTaskPool(t *testing.T) {
	store := NewPageStore(0)
	shared := store.NewPage()
	pool := NewTaskPool()
	for _, id := range []TaskID{3, 1, 2} {
		task := NewTask(id, 1)
		task.Map(shared, 0)
		stack := store.NewPage()
		task.Map(stack, stackVPN)
		stack.Release()
		pool.Add(task)
	}
	shared.Release()
	assert.Equal(t, []TaskID{1, 2, 3}, pool.IDs())
	assert.Equal(t, int32(4), shared.Refs())

	_, ok := pool.Get(4)
	assert.False(t, ok)
	task, ok := pool.Get(2)
	require.True(t, ok)
	assert.Equal(t, TaskID(2), task.ID())

	pool.Remove(2)
	assert.Equal(t, 2, pool.Len())
	assert.Equal(t, int32(3), shared.Refs())
	assert.Equal(t, 1, store.Free())
	assert.Nil(t, task.Mapping)
}

func TestMemory(t *testing.T) {
	store := NewPageStore(0)
	task := NewTask(1, 1)
	p := store.NewPage()
	task.Map(p, 1)
	p.Release()
	p.Write(0xFFF0, []byte("hi\x00"))

	m := NewMemory()
	ll := true
	m.Mapped(task, &ll, func(_ *Task, m *Memory) {
		assert.Same(t, p, m.Page(1))
		assert.True(t, m.Linked())
		s, _, ok := m.CString(0x1FFF0)
		assert.True(t, ok)
		assert.Equal(t, "hi", string(s))
		_, addr, ok := m.CString(0x2FFF0)
		assert.False(t, ok)
		assert.Equal(t, uint32(0x2FFF0), addr)
		m.ll = false
	})
	assert.False(t, ll)
	assert.Nil(t, m.Page(1))

	assert.Panics(t, func() {
		m.Mapped(task, &ll, func(*Task, *Memory) { panic("boom") })
	})
	assert.Nil(t, m.Page(1))
}
