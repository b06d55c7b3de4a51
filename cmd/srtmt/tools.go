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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ParkerTenBroeck/SRTMT/asm"
	"github.com/ParkerTenBroeck/SRTMT/vm"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newAsmCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "asm [-o output] source",
		Short: "Assemble a source file into an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			if out == "" {
				out = strings.TrimSuffix(src, filepath.Ext(src)) + ".bin"
			}
			img, err := loadImage(src, true)
			if err != nil {
				return err
			}
			if len(img) > vm.PageSize {
				return errors.Errorf("%s: image too large: %d bytes, max %d", src, len(img), vm.PageSize)
			}
			return errors.Wrap(os.WriteFile(out, img, 0o644), "write image")
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output `file`")
	return cmd
}

func newDisasmCmd() *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "disasm [--base addr] image",
		Short: "Disassemble an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			b, err := strconv.ParseUint(base, 0, 32)
			if err != nil {
				return errors.Wrap(err, "invalid base address")
			}
			img, err := vm.LoadImage(args[0])
			if err != nil {
				return err
			}
			w := bufio.NewWriter(os.Stdout)
			defer func() {
				if e := w.Flush(); err == nil {
					err = e
				}
			}()
			return asm.DisassembleAll(img, uint32(b), w)
		},
	}
	cmd.Flags().StringVar(&base, "base", "0", "address of the first byte of the image")
	return cmd
}
