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
	"io"
	"os"

	"github.com/pkg/errors"
)

// LoadImage reads a binary image from file fileName. Images larger than one
// page are rejected.
func LoadImage(fileName string) ([]byte, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "LoadImage")
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "LoadImage")
	}
	if sz := st.Size(); sz > PageSize {
		return nil, errors.Errorf("LoadImage %v: file too large (%d bytes, max %d)", fileName, sz, PageSize)
	}
	b, err := io.ReadAll(io.LimitReader(f, PageSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "LoadImage")
	}
	if len(b) > PageSize {
		return nil, errors.Errorf("LoadImage %v: file too large", fileName)
	}
	return b, nil
}

// LoadFile loads the image in fileName as the first task of a new process.
func (s *System) LoadFile(fileName string) (*Task, error) {
	b, err := LoadImage(fileName)
	if err != nil {
		return nil, err
	}
	return s.Load(b)
}
