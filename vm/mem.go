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
	"sync/atomic"
)

const (
	// PageSize is the size in bytes of a Page.
	PageSize = 0x10000
	// PageCount is the number of virtual pages in the 32-bit address space.
	PageCount = 0x10000

	pageWords = PageSize / 4
)

// Page is a 64 KiB block of guest memory stored as little-endian words.
//
// Every access is atomic, so a page mapped by several tasks sees their writes
// as soon as they are made. Sub-word stores update the containing word with a
// compare-and-swap loop.
type Page struct {
	words [pageWords]uint32
	refs  atomic.Int32
}

// fill resets every byte of the page to b.
func (p *Page) fill(b byte) {
	w := uint32(b) * 0x01010101
	for i := range p.words {
		atomic.StoreUint32(&p.words[i], w)
	}
}

// Refs returns the number of owners of the page, the PageStore included.
func (p *Page) Refs() int32 { return p.refs.Load() }

func (p *Page) retain() { p.refs.Add(1) }

// Release drops one reference to the page. The page is not reclaimed until a
// later PageStore.NewPage finds it owned by the store alone.
func (p *Page) Release() { p.refs.Add(-1) }

// Load8 returns the byte at offset off.
func (p *Page) Load8(off uint16) uint8 {
	return uint8(atomic.LoadUint32(&p.words[off>>2]) >> (off & 3 * 8))
}

// Load16 returns the halfword at offset off. The lowest bit of off is ignored.
func (p *Page) Load16(off uint16) uint16 {
	return uint16(atomic.LoadUint32(&p.words[off>>2]) >> (off & 2 * 8))
}

// Load32 returns the word at offset off. The lowest two bits of off are
// ignored.
func (p *Page) Load32(off uint16) uint32 {
	return atomic.LoadUint32(&p.words[off>>2])
}

// Store8 sets the byte at offset off.
func (p *Page) Store8(off uint16, v uint8) {
	s := off & 3 * 8
	p.update(off>>2, 0xFF<<s, uint32(v)<<s)
}

// Store16 sets the halfword at offset off. The lowest bit of off is ignored.
func (p *Page) Store16(off uint16, v uint16) {
	s := off & 2 * 8
	p.update(off>>2, 0xFFFF<<s, uint32(v)<<s)
}

// Store32 sets the word at offset off. The lowest two bits of off are ignored.
func (p *Page) Store32(off uint16, v uint32) {
	atomic.StoreUint32(&p.words[off>>2], v)
}

func (p *Page) update(i uint16, mask, bits uint32) {
	w := &p.words[i]
	for {
		old := atomic.LoadUint32(w)
		if atomic.CompareAndSwapUint32(w, old, old&^mask|bits) {
			return
		}
	}
}

// Write copies b into the page starting at offset off. It returns the number
// of bytes copied, which is short if b runs past the end of the page.
func (p *Page) Write(off int, b []byte) int {
	n := 0
	for ; n < len(b) && off+n < PageSize; n++ {
		p.Store8(uint16(off+n), b[n])
	}
	return n
}

// Read copies bytes from the page starting at offset off into b.
func (p *Page) Read(off int, b []byte) int {
	n := 0
	for ; n < len(b) && off+n < PageSize; n++ {
		b[n] = p.Load8(uint16(off + n))
	}
	return n
}

// PageStore owns every page of a System.
//
// Pages are handed out with a reference held on behalf of the caller. A page
// whose only remaining owner is the store is reset and handed out again by the
// next call to NewPage, so the number of pages is bounded by the high water
// mark of live pages.
type PageStore struct {
	mu    sync.Mutex
	pages []*Page
	fill  byte
}

// NewPageStore returns an empty store whose pages are reset to fill.
func NewPageStore(fill byte) *PageStore {
	return &PageStore{fill: fill}
}

// NewPage returns a page filled with the store's fill pattern. The caller owns
// one reference to it.
func (s *PageStore) NewPage() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pages {
		if p.refs.Load() == 1 {
			p.fill(s.fill)
			p.retain()
			return p
		}
	}
	p := new(Page)
	if s.fill != 0 {
		p.fill(s.fill)
	}
	p.refs.Store(2)
	s.pages = append(s.pages, p)
	return p
}

// Len returns the number of pages allocated so far.
func (s *PageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Free returns the number of pages that the next calls to NewPage can recycle.
func (s *PageStore) Free() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.pages {
		if p.refs.Load() == 1 {
			n++
		}
	}
	return n
}

// Memory is the flat, page indexed view a task executes against. It only
// holds pages while a task's mapping is installed with Mapped.
type Memory struct {
	pages [PageCount]*Page
	ll    bool
}

// NewMemory returns an empty view.
func NewMemory() *Memory { return new(Memory) }

// Page returns the page mapped at vpn, or nil.
func (m *Memory) Page(vpn uint16) *Page { return m.pages[vpn] }

// Linked reports whether the load-linked reservation is held.
func (m *Memory) Linked() bool { return m.ll }

// Mapped installs t's mapping and the reservation flag *ll into m, calls fn,
// then clears the view and writes the reservation flag back to *ll. The view
// is cleared on every exit path, panics included, so no page reference
// outlives the call.
func (m *Memory) Mapped(t *Task, ll *bool, fn func(t *Task, m *Memory)) {
	vpns := make([]uint16, len(t.Mapping))
	for i, e := range t.Mapping {
		m.pages[e.VPN] = e.Page
		vpns[i] = e.VPN
	}
	m.ll = *ll
	defer func() {
		*ll = m.ll
		m.ll = false
		for _, vpn := range vpns {
			m.pages[vpn] = nil
		}
	}()
	fn(t, m)
}

// CString returns the zero terminated byte string at addr, without its
// terminator. If the string runs into an unmapped page, it returns the first
// unmapped address and false.
func (m *Memory) CString(addr uint32) ([]byte, uint32, bool) {
	var b []byte
	for {
		p := m.pages[addr>>16]
		if p == nil {
			return nil, addr, false
		}
		c := p.Load8(uint16(addr))
		if c == 0 {
			return b, 0, true
		}
		b = append(b, c)
		addr++
	}
}
