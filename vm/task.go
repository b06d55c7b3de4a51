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
	"fmt"
	"io"
	"strconv"

	"github.com/xlab/treeprint"
)

// TaskID identifies a task. Valid ids are non-zero.
type TaskID uint32

// ProcessID groups tasks that share their first mapped page.
type ProcessID uint32

// Registers is the architectural state of a task.
type Registers struct {
	PC     uint32
	HI, LO uint32
	R      [32]uint32
}

// Mapping places a page at a virtual page number.
type Mapping struct {
	Page *Page
	VPN  uint16
}

// Task is one guest execution context.
type Task struct {
	Registers
	// Mapping is the task's page table. The first entry is the page shared
	// with tasks spawned from it.
	Mapping []Mapping

	id  TaskID
	pid ProcessID
	out []byte // print_char bytes not yet terminated by a newline

	// time of the previous sleep_delta_ms call
	lastDelta int64
}

// NewTask returns a task with an empty mapping.
func NewTask(id TaskID, pid ProcessID) *Task {
	return &Task{id: id, pid: pid}
}

// ID returns the task id.
func (t *Task) ID() TaskID { return t.id }

// PID returns the id of the process the task belongs to.
func (t *Task) PID() ProcessID { return t.pid }

// Map appends p at vpn to the task's mapping and takes a reference to it.
func (t *Task) Map(p *Page, vpn uint16) {
	p.retain()
	t.Mapping = append(t.Mapping, Mapping{Page: p, VPN: vpn})
}

// release drops the task's references to its pages.
func (t *Task) release() {
	for _, e := range t.Mapping {
		e.Page.Release()
	}
	t.Mapping = nil
}

func hex32(v uint32) string { return fmt.Sprintf("%#08x", v) }

// Tree returns the task state as a tree: registers by ABI name, HI/LO, the
// mapping and any pending output.
func (t *Task) Tree() treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("task %d (process %d)", t.id, t.pid))
	regs := tree.AddBranch("registers")
	regs.AddMetaNode("pc", hex32(t.PC))
	regs.AddMetaNode("hi", hex32(t.HI))
	regs.AddMetaNode("lo", hex32(t.LO))
	for i, v := range t.R {
		if i == 0 {
			continue
		}
		regs.AddMetaNode(RegisterNames[i], hex32(v))
	}
	mapping := tree.AddBranch("mapping")
	for _, e := range t.Mapping {
		mapping.AddMetaNode(fmt.Sprintf("%#04x", e.VPN), fmt.Sprintf("%#08x-%#08x refs=%d",
			uint32(e.VPN)<<16, uint32(e.VPN)<<16|0xFFFF, e.Page.Refs()))
	}
	if len(t.out) > 0 {
		tree.AddMetaNode("pending output", strconv.Quote(string(t.out)))
	}
	return tree
}

// Dump writes the task state to w.
func (t *Task) Dump(w io.Writer) error {
	_, err := io.WriteString(w, t.Tree().String())
	return err
}
