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


package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ParkerTenBroeck/SRTMT/asm"
	"github.com/ParkerTenBroeck/SRTMT/internal/log"
	"github.com/ParkerTenBroeck/SRTMT/vm"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type runFlags struct {
	asm             bool
	fallbackQuantum uint32
	targetSlice     time.Duration
	debugFill       bool
	malformed       string
	format          string
	seed            uint64
	stats           bool
}

func newRunCmd() *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run [flags] image...",
		Short: "Run one or more programs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImages(cmd, &rf, args)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&rf.asm, "asm", false, "treat the files as assembly sources")
	f.Uint32Var(&rf.fallbackQuantum, "fallback-quantum", 500, "slice length in instructions before timing data is available")
	f.DurationVar(&rf.targetSlice, "target-slice", 200*time.Microsecond, "wall time each slice aims at")
	f.BoolVar(&rf.debugFill, "debug-fill", false, "fill fresh pages with 0xdb")
	f.StringVar(&rf.malformed, "malformed", "kill", "malformed call arguments `policy`: kill or ignore")
	f.StringVar(&rf.format, "format", "prefixed", "guest output `format`: prefixed, plain or log")
	f.Uint64Var(&rf.seed, "seed", 0, "seed of the random syscall (0: time based)")
	f.BoolVar(&rf.stats, "stats", false, "print scheduler statistics on exit")
	return cmd
}

func loadImage(fileName string, source bool) ([]byte, error) {
	if !source {
		return vm.LoadImage(fileName)
	}
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "open source")
	}
	defer f.Close()
	return asm.Assemble(fileName, bufio.NewReader(f))
}

func runImages(cmd *cobra.Command, rf *runFlags, files []string) (err error) {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("fallback-quantum") {
		c.Scheduler.FallbackQuantum = rf.fallbackQuantum
	}
	if flags.Changed("target-slice") {
		c.Scheduler.TargetSlice = rf.targetSlice.String()
	}
	if flags.Changed("debug-fill") {
		c.Memory.DebugFill = rf.debugFill
	}
	if flags.Changed("malformed") {
		c.Syscalls.MalformedArgs = rf.malformed
	}
	if flags.Changed("format") {
		c.Output.Format = rf.format
	}
	if err = c.InitLog(os.Stderr); err != nil {
		return err
	}

	stdout := bufio.NewWriter(os.Stdout)
	defer func() {
		if e := stdout.Flush(); err == nil {
			err = errors.Wrap(e, "flush output")
		}
	}()

	opts, err := c.Options(stdout)
	if err != nil {
		return err
	}
	opts = append(opts, vm.OnFault(func(t *vm.Task, f *vm.Fault) {
		stdout.Flush()
		if err := dumpFault(os.Stderr, t, f); err != nil {
			log.Error(log.TaskMonitoring, "fault dump failed", "err", err)
		}
	}))
	if flags.Changed("seed") {
		opts = append(opts, vm.RandomSeed(rf.seed))
	}
	s, err := vm.New(opts...)
	if err != nil {
		return err
	}
	for _, name := range files {
		img, err := loadImage(name, rf.asm)
		if err != nil {
			return err
		}
		if _, err = s.Load(img); err != nil {
			return errors.Wrap(err, name)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	n, err := s.Run(ctx)
	if rf.stats {
		stdout.Flush()
		printStats(os.Stderr, s, n, time.Since(start))
	}
	if errors.Is(err, context.Canceled) {
		log.Warn(log.SystemMonitoring, "interrupted", "tasks", len(s.Pool().IDs()))
		return nil
	}
	return err
}

func printStats(w io.Writer, s *vm.System, n uint64, elapsed time.Duration) {
	st := s.Scheduler().Stats()
	fmt.Fprintf(w, "instructions: %d in %v", n, elapsed)
	if elapsed > 0 {
		fmt.Fprintf(w, " (%.2f MIPS)", float64(n)/elapsed.Seconds()/1e6)
	}
	fmt.Fprintf(w, "\nslice: %d instructions, %v\nround: %v\npages: %d (%d free)\n",
		st.Instructions, st.SliceTime, st.RoundTime, s.Store().Len(), s.Store().Free())
}
