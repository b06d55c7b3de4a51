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
	"strings"
	"sync"

	"github.com/ParkerTenBroeck/SRTMT/internal/log"
)

// Sink receives the text printed by tasks. Lines produced by print_char end
// with a newline; print_i32 and print_cstr texts are passed as is.
type Sink interface {
	Print(id TaskID, text string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(id TaskID, text string) error

// Print calls f(id, text).
func (f SinkFunc) Print(id TaskID, text string) error { return f(id, text) }

type logSink struct{}

func (logSink) Print(id TaskID, text string) error {
	log.Info(log.OutputMonitoring, strings.TrimSuffix(text, "\n"), "task", id)
	return nil
}

// LogSink returns the default sink: every text becomes an info record of the
// vm_out module.
func LogSink() Sink { return logSink{} }

type writerSink struct {
	mu     sync.Mutex
	w      io.Writer
	prefix bool
}

func (s *writerSink) Print(id TaskID, text string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefix {
		_, err = fmt.Fprintf(s.w, "Task: %d -> %s\n", id, strings.TrimSuffix(text, "\n"))
	} else {
		_, err = io.WriteString(s.w, text)
	}
	return err
}

// WriterSink returns a sink that writes texts to w verbatim.
func WriterSink(w io.Writer) Sink { return &writerSink{w: w} }

// PrefixedWriterSink returns a sink that writes every text to w on a line of
// its own, prefixed with the task id.
func PrefixedWriterSink(w io.Writer) Sink { return &writerSink{w: w, prefix: true} }
