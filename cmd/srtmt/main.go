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
	"fmt"
	"os"

	"github.com/ParkerTenBroeck/SRTMT/internal/config"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	logModules string
	debug      bool
)

// loadConfig reads the configuration file and applies the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-modules") {
		c.Log.Modules = logModules
	}
	return c, nil
}

func atExit(err error) {
	if err == nil {
		return
	}
	if debug {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "srtmt",
		Short: "SRTMT virtual machine",
		Long: `srtmt runs programs for a 32-bit little-endian MIPS machine with
cooperative multitasking, and assembles or disassembles them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML configuration `file`")
	pf.StringVar(&logLevel, "log-level", "info", "log `level`")
	pf.StringVar(&logModules, "log-modules", "", "comma separated `modules` to trace")
	pf.BoolVar(&debug, "debug", false, "print errors with their stack trace")

	root.AddCommand(newRunCmd(), newAsmCmd(), newDisasmCmd())
	return root
}

func main() {
	atExit(newRootCmd().Execute())
}
