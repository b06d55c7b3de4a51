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


// Package config loads the YAML configuration of the srtmt command and turns
// it into vm options.
//
// A complete file with the default values:
//
//	log:
//	  level: info
//	  modules: ""          # comma separated: vm_sched,vm_task,vm_sys,vm_out
//	scheduler:
//	  fallback_quantum: 500
//	  target_slice: 200us
//	memory:
//	  debug_fill: false    # fill fresh pages with 0xdb instead of 0
//	syscalls:
//	  malformed_args: kill # or ignore
//	output:
//	  format: prefixed     # prefixed, plain or log
package config

import (
	"io"
	"os"
	"time"

	"github.com/ParkerTenBroeck/SRTMT/internal/log"
	"github.com/ParkerTenBroeck/SRTMT/vm"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Output formats.
const (
	FormatPrefixed = "prefixed" // "Task: <id> -> <text>" lines
	FormatPlain    = "plain"    // guest text verbatim
	FormatLog      = "log"      // one info record per text
)

const debugFill = 0xdb

// Config mirrors the configuration file.
type Config struct {
	Log struct {
		Level   string `yaml:"level"`
		Modules string `yaml:"modules"`
	} `yaml:"log"`
	Scheduler struct {
		FallbackQuantum uint32 `yaml:"fallback_quantum"`
		TargetSlice     string `yaml:"target_slice"`
	} `yaml:"scheduler"`
	Memory struct {
		DebugFill bool `yaml:"debug_fill"`
	} `yaml:"memory"`
	Syscalls struct {
		MalformedArgs string `yaml:"malformed_args"`
	} `yaml:"syscalls"`
	Output struct {
		Format string `yaml:"format"`
	} `yaml:"output"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := new(Config)
	c.Log.Level = "info"
	c.Scheduler.FallbackQuantum = 500
	c.Scheduler.TargetSlice = "200us"
	c.Syscalls.MalformedArgs = vm.MalformedKill.String()
	c.Output.Format = FormatPrefixed
	return c
}

// Parse reads a configuration from b on top of the defaults. Unknown keys are
// an error.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(b, c); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the configuration file fileName. An empty name yields the
// defaults.
func Load(fileName string) (*Config, error) {
	if fileName == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", fileName)
	}
	return c, nil
}

// Validate checks every value that Options would otherwise reject later.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := c.targetSlice(); err != nil {
		return err
	}
	if c.Scheduler.FallbackQuantum == 0 {
		return errors.New("scheduler.fallback_quantum must be positive")
	}
	if _, err := vm.ParsePolicy(c.Syscalls.MalformedArgs); err != nil {
		return err
	}
	switch c.Output.Format {
	case FormatPrefixed, FormatPlain, FormatLog:
	default:
		return errors.Errorf("unknown output format %q", c.Output.Format)
	}
	return nil
}

func (c *Config) targetSlice() (time.Duration, error) {
	d, err := time.ParseDuration(c.Scheduler.TargetSlice)
	if err != nil {
		return 0, errors.Wrap(err, "scheduler.target_slice")
	}
	if d <= 0 {
		return 0, errors.Errorf("scheduler.target_slice must be positive, got %v", d)
	}
	return d, nil
}

// InitLog installs the root logger on w and enables the configured modules.
func (c *Config) InitLog(w io.Writer) error {
	if err := log.InitLogger(w, c.Log.Level); err != nil {
		return err
	}
	log.EnableModules(c.Log.Modules)
	return nil
}

// Options converts the configuration to vm options. Guest output goes to out
// unless the format is FormatLog.
func (c *Config) Options(out io.Writer) ([]vm.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ts, _ := c.targetSlice()
	p, _ := vm.ParsePolicy(c.Syscalls.MalformedArgs)
	opts := []vm.Option{
		vm.FallbackQuantum(c.Scheduler.FallbackQuantum),
		vm.TargetSlice(ts),
		vm.MalformedArgs(p),
	}
	if c.Memory.DebugFill {
		opts = append(opts, vm.PageFill(debugFill))
	}
	switch c.Output.Format {
	case FormatPrefixed:
		opts = append(opts, vm.Output(vm.PrefixedWriterSink(out)))
	case FormatPlain:
		opts = append(opts, vm.Output(vm.WriterSink(out)))
	case FormatLog:
		opts = append(opts, vm.Output(vm.LogSink()))
	}
	return opts, nil
}
