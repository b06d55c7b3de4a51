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

	"golang.org/x/exp/slices"
)

// TaskPool owns the live tasks of a System, keyed by id.
type TaskPool struct {
	mu    sync.RWMutex
	tasks map[TaskID]*Task
}

// NewTaskPool returns an empty pool.
func NewTaskPool() *TaskPool {
	return &TaskPool{tasks: make(map[TaskID]*Task)}
}

// Add adds t to the pool. Adding a second task with the same id replaces the
// first one without releasing its pages.
func (p *TaskPool) Add(t *Task) {
	p.mu.Lock()
	p.tasks[t.id] = t
	p.mu.Unlock()
}

// Get returns the task with the given id.
func (p *TaskPool) Get(id TaskID) (*Task, bool) {
	p.mu.RLock()
	t, ok := p.tasks[id]
	p.mu.RUnlock()
	return t, ok
}

// Remove removes the task with the given id and drops its page references.
// Pages it shared stay mapped in the other tasks; pages it owned alone become
// recyclable by the PageStore.
func (p *TaskPool) Remove(id TaskID) {
	p.mu.Lock()
	t, ok := p.tasks[id]
	delete(p.tasks, id)
	p.mu.Unlock()
	if ok {
		t.release()
	}
}

// Len returns the number of live tasks.
func (p *TaskPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tasks)
}

// IDs returns the ids of the live tasks in ascending order.
func (p *TaskPool) IDs() []TaskID {
	p.mu.RLock()
	ids := make([]TaskID, 0, len(p.tasks))
	for id := range p.tasks {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
