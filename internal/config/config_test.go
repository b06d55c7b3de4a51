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


package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ParkerTenBroeck/SRTMT/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	opts, err := c.Options(nil)
	require.NoError(t, err)
	s, err := vm.New(opts...)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), s.Scheduler().Quantum())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
log:
  level: debug
  modules: vm_sched, vm_task
scheduler:
  fallback_quantum: 64
  target_slice: 1ms
memory:
  debug_fill: true
syscalls:
  malformed_args: ignore
output:
  format: plain
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "vm_sched, vm_task", c.Log.Modules)
	assert.Equal(t, uint32(64), c.Scheduler.FallbackQuantum)
	ts, err := c.targetSlice()
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, ts)
	assert.True(t, c.Memory.DebugFill)
	assert.Equal(t, "ignore", c.Syscalls.MalformedArgs)
	assert.Equal(t, FormatPlain, c.Output.Format)

	// missing keys keep their default
	c, err = Parse([]byte("output:\n  format: log\n"))
	require.NoError(t, err)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, uint32(500), c.Scheduler.FallbackQuantum)
}

func TestParse_errors(t *testing.T) {
	for _, src := range []string{
		"log:\n  level: loud\n",
		"scheduler:\n  fallback_quantum: 0\n",
		"scheduler:\n  target_slice: soon\n",
		"scheduler:\n  target_slice: -1s\n",
		"syscalls:\n  malformed_args: shrug\n",
		"output:\n  format: html\n",
		"memory:\n  size: 12\n",
		"log: [\n",
	} {
		_, err := Parse([]byte(src))
		assert.Error(t, err, src)
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	name := filepath.Join(t.TempDir(), "srtmt.yaml")
	require.NoError(t, os.WriteFile(name, []byte("memory:\n  debug_fill: true\n"), 0o644))
	c, err = Load(name)
	require.NoError(t, err)
	assert.True(t, c.Memory.DebugFill)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOptions_output(t *testing.T) {
	// lw $a0, -4($sp); syscall 1; syscall 0
	img := []byte{
		0xFC, 0xFF, 0xA4, 0x8F,
		0x4C, 0x00, 0x00, 0x00,
		0x0C, 0x00, 0x00, 0x00,
	}
	for _, d := range []struct {
		format string
		fill   bool
		want   string
	}{
		{FormatPrefixed, false, "Task: 1 -> 0\n"},
		{FormatPlain, true, "-606348325"},
		{FormatLog, false, ""},
	} {
		c := Default()
		c.Output.Format = d.format
		c.Memory.DebugFill = d.fill
		var buf bytes.Buffer
		opts, err := c.Options(&buf)
		require.NoError(t, err)
		s, err := vm.New(opts...)
		require.NoError(t, err)
		_, err = s.Load(img)
		require.NoError(t, err)
		_, err = s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, d.want, buf.String(), d.format)
	}
}
