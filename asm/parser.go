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


package asm

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"text/scanner"
	"unicode"

	"github.com/ParkerTenBroeck/SRTMT/vm"
	"github.com/pkg/errors"
)

const maxErrors = 10

func isIdentRune(ch rune, i int) bool {
	return ch == '_' || ch == '.' || unicode.IsLetter(ch) || unicode.IsDigit(ch) && i > 0
}

// term is one signed operand of an expression: an integer or a symbol.
type term struct {
	neg bool
	val int64
	sym string
}

// expr is a sum of terms.
type expr []term

type operandKind uint8

const (
	opReg operandKind = iota
	opExpr
	opMem // expr($reg)
)

type operand struct {
	kind operandKind
	reg  uint32
	e    expr
	pos  scanner.Position
}

type stmtKind uint8

const (
	stmtInstr stmtKind = iota
	stmtData
	stmtBytes
)

type stmt struct {
	kind  stmtKind
	pos   scanner.Position
	pc    uint32
	size  uint32
	name  string    // mnemonic
	ops   []operand // instruction operands
	width int       // data item width
	data  []expr    // data items
	bytes []byte
}

type labelSite struct {
	pos     scanner.Position
	address uint32
}

type parser struct {
	s      scanner.Scanner
	tok    rune
	pc     uint32
	stmts  []*stmt
	labels map[string]labelSite
	consts map[string]int64
	errs   ErrAsm
}

func newParser() *parser {
	return &parser{
		labels: make(map[string]labelSite),
		consts: make(map[string]int64),
	}
}

func (p *parser) errorf(pos scanner.Position, format string, args ...interface{}) {
	if len(p.errs) >= maxErrors {
		return
	}
	if !pos.IsValid() {
		pos = p.s.Pos()
	}
	p.errs = append(p.errs, struct {
		Pos scanner.Position
		Msg string
	}{pos, fmt.Sprintf(format, args...)})
}

func (p *parser) next() {
	p.tok = p.s.Scan()
}

func (p *parser) text() string { return p.s.TokenText() }

// skipLine discards the rest of the current line, the newline included.
func (p *parser) skipLine() {
	if p.tok != '\n' && p.tok != scanner.EOF {
		for ch := p.s.Peek(); ch != '\n' && ch != scanner.EOF; ch = p.s.Peek() {
			p.s.Next()
		}
		p.next()
	}
	if p.tok == '\n' {
		p.next()
	}
}

func (p *parser) endLine() {
	switch p.tok {
	case '\n', '#', scanner.EOF:
	default:
		p.errorf(p.s.Position, "unexpected %s at end of statement", scanner.TokenString(p.tok))
	}
	p.skipLine()
}

// Parse does the parsing and compiling.
func (p *parser) Parse(name string, r io.Reader) ([]byte, error) {
	p.s.Init(r)
	p.s.Filename = name
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanChars | scanner.ScanStrings
	p.s.Whitespace = 1<<'\t' | 1<<'\r' | 1<<' '
	p.s.IsIdentRune = isIdentRune
	p.s.Error = func(s *scanner.Scanner, msg string) {
		p.errorf(s.Pos(), "%s", msg)
	}

	for p.next(); p.tok != scanner.EOF; {
		p.line()
	}
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	img := p.encode()
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return img, nil
}

func (p *parser) line() {
	for {
		switch p.tok {
		case '\n':
			p.next()
			return
		case '#':
			p.skipLine()
			return
		case scanner.EOF:
			return
		case scanner.Ident:
		default:
			p.errorf(p.s.Position, "unexpected %s", scanner.TokenString(p.tok))
			p.skipLine()
			return
		}
		name, pos := p.text(), p.s.Position
		p.next()
		if p.tok == ':' {
			p.defineLabel(name, pos)
			p.next()
			continue
		}
		var ok bool
		if name[0] == '.' {
			ok = p.directive(name, pos)
		} else {
			ok = p.instruction(name, pos)
		}
		if ok {
			p.endLine()
		} else {
			p.skipLine()
		}
		return
	}
}

func (p *parser) defineLabel(name string, pos scanner.Position) {
	if l, ok := p.labels[name]; ok {
		p.errorf(pos, "label redefinition: %s, previous definition here: %s", name, l.pos)
		return
	}
	if _, ok := p.consts[name]; ok {
		p.errorf(pos, "label redefinition: %s, previously defined as a constant", name)
		return
	}
	p.labels[name] = labelSite{pos, p.pc}
}

func (p *parser) directive(name string, pos scanner.Position) bool {
	switch name {
	case ".org":
		v, ok := p.constExpr()
		if ok {
			p.pc = uint32(v)
		}
		return ok
	case ".align":
		v, ok := p.constExpr()
		if !ok {
			return false
		}
		if v < 0 || v > 16 {
			p.errorf(pos, ".align: invalid alignment %d", v)
			return false
		}
		a := uint32(1) << v
		p.pc = (p.pc + a - 1) &^ (a - 1)
	case ".equ":
		if p.tok != scanner.Ident {
			p.errorf(p.s.Position, ".equ: expected identifier, got %s", p.text())
			return false
		}
		cst := p.text()
		if l, ok := p.labels[cst]; ok {
			p.errorf(p.s.Position, ".equ: redefinition of %s, previously defined as a label here: %s", cst, l.pos)
			return false
		}
		p.next()
		if p.tok == ',' {
			p.next()
		}
		v, ok := p.constExpr()
		if ok {
			p.consts[cst] = v
		}
		return ok
	case ".word", ".half", ".byte":
		st := &stmt{kind: stmtData, pos: pos, pc: p.pc, width: map[string]int{".word": 4, ".half": 2, ".byte": 1}[name]}
		for {
			e, ok := p.expr()
			if !ok {
				return false
			}
			st.data = append(st.data, e)
			if p.tok != ',' {
				break
			}
			p.next()
		}
		st.size = uint32(st.width * len(st.data))
		p.emit(st)
	case ".ascii", ".asciiz":
		if p.tok != scanner.String {
			p.errorf(p.s.Position, "%s: expected string, got %s", name, p.text())
			return false
		}
		s, err := strconv.Unquote(p.text())
		if err != nil {
			p.errorf(p.s.Position, "%s: %v", name, err)
			return false
		}
		p.next()
		b := []byte(s)
		if name == ".asciiz" {
			b = append(b, 0)
		}
		p.emit(&stmt{kind: stmtBytes, pos: pos, pc: p.pc, size: uint32(len(b)), bytes: b})
	default:
		p.errorf(pos, "unknown directive: %s", name)
		return false
	}
	return true
}

func (p *parser) emit(st *stmt) {
	p.stmts = append(p.stmts, st)
	p.pc += st.size
}

func (p *parser) instruction(name string, pos scanner.Position) bool {
	if _, ok := opcodeIndex[name]; !ok {
		if _, ok := pseudoSize[name]; !ok {
			p.errorf(pos, "unknown instruction: %s", name)
			return false
		}
	}
	st := &stmt{kind: stmtInstr, pos: pos, pc: p.pc, size: 4, name: name}
	for p.tok != '\n' && p.tok != '#' && p.tok != scanner.EOF {
		o, ok := p.operand()
		if !ok {
			return false
		}
		st.ops = append(st.ops, o)
		if p.tok != ',' {
			break
		}
		p.next()
	}
	if n, ok := pseudoSize[name]; ok {
		st.size = n
		if name == "li" && len(st.ops) == 2 && st.ops[1].kind == opExpr {
			// known constants that fit in 16 bits load with one instruction
			if v, ok := p.evalConst(st.ops[1].e); ok && v >= -0x8000 && v <= 0xFFFF {
				st.size = 4
			}
		}
	}
	if st.pc&3 != 0 {
		p.errorf(pos, "misaligned instruction at %#x", st.pc)
	}
	p.emit(st)
	return true
}

func (p *parser) register() (uint32, bool) {
	// current token is '$'
	p.next()
	pos, s := p.s.Position, p.text()
	switch p.tok {
	case scanner.Ident:
		if r, ok := vm.RegisterByName(s); ok {
			p.next()
			return r, true
		}
	case scanner.Int:
		if r, err := strconv.ParseUint(s, 10, 8); err == nil && r < 32 {
			p.next()
			return uint32(r), true
		}
	}
	p.errorf(pos, "invalid register $%s", s)
	return 0, false
}

func (p *parser) operand() (operand, bool) {
	o := operand{pos: p.s.Position}
	if p.tok == '$' {
		r, ok := p.register()
		o.kind, o.reg = opReg, r
		return o, ok
	}
	if p.tok != '(' {
		e, ok := p.expr()
		if !ok {
			return o, false
		}
		o.kind, o.e = opExpr, e
		if p.tok != '(' {
			return o, true
		}
	}
	// base register
	p.next()
	if p.tok != '$' {
		p.errorf(p.s.Position, "expected base register, got %s", p.text())
		return o, false
	}
	r, ok := p.register()
	if !ok {
		return o, false
	}
	if p.tok != ')' {
		p.errorf(p.s.Position, "expected ')', got %s", p.text())
		return o, false
	}
	p.next()
	o.kind, o.reg = opMem, r
	return o, true
}

func (p *parser) expr() (expr, bool) {
	var e expr
	neg := false
	switch p.tok {
	case '-':
		neg = true
		p.next()
	case '+':
		p.next()
	}
	for {
		t := term{neg: neg}
		s := p.text()
		switch p.tok {
		case scanner.Int:
			v, err := strconv.ParseInt(s, 0, 64)
			if err != nil {
				p.errorf(p.s.Position, "invalid integer %s", s)
				return nil, false
			}
			t.val = v
		case scanner.Char:
			r, _, _, err := strconv.UnquoteChar(s[1:len(s)-1], '\'')
			if err != nil {
				p.errorf(p.s.Position, "invalid character %s: %v", s, err)
				return nil, false
			}
			t.val = int64(r)
		case scanner.Ident:
			t.sym = s
		default:
			p.errorf(p.s.Position, "expected expression, got %s", scanner.TokenString(p.tok))
			return nil, false
		}
		e = append(e, t)
		p.next()
		switch p.tok {
		case '+':
			neg = false
		case '-':
			neg = true
		default:
			return e, true
		}
		p.next()
	}
}

// evalConst evaluates e using constants only.
func (p *parser) evalConst(e expr) (int64, bool) {
	var v int64
	for _, t := range e {
		x := t.val
		if t.sym != "" {
			c, ok := p.consts[t.sym]
			if !ok {
				return 0, false
			}
			x = c
		}
		if t.neg {
			x = -x
		}
		v += x
	}
	return v, true
}

// constExpr parses an expression that must be known at this point.
func (p *parser) constExpr() (int64, bool) {
	pos := p.s.Position
	e, ok := p.expr()
	if !ok {
		return 0, false
	}
	v, err := p.eval(e)
	if err != nil {
		p.errorf(pos, "%v", err)
		return 0, false
	}
	return v, true
}

func (p *parser) eval(e expr) (int64, error) {
	var v int64
	for _, t := range e {
		x := t.val
		if t.sym != "" {
			if c, ok := p.consts[t.sym]; ok {
				x = c
			} else if l, ok := p.labels[t.sym]; ok {
				x = int64(l.address)
			} else {
				return 0, errors.Errorf("undefined symbol %s", t.sym)
			}
		}
		if t.neg {
			x = -x
		}
		v += x
	}
	return v, nil
}

// encode resolves every statement into the image.
func (p *parser) encode() []byte {
	var end uint32
	for _, st := range p.stmts {
		if e := st.pc + st.size; e > end {
			end = e
		}
	}
	img := make([]byte, end)
	for _, st := range p.stmts {
		switch st.kind {
		case stmtBytes:
			copy(img[st.pc:], st.bytes)
		case stmtData:
			for i, e := range st.data {
				v, err := p.eval(e)
				if err != nil {
					p.errorf(st.pos, "%v", err)
					continue
				}
				at := img[st.pc+uint32(i*st.width):]
				switch st.width {
				case 4:
					binary.LittleEndian.PutUint32(at, uint32(v))
				case 2:
					binary.LittleEndian.PutUint16(at, uint16(v))
				default:
					at[0] = byte(v)
				}
			}
		case stmtInstr:
			words, err := p.assemble(st)
			if err != nil {
				p.errorf(st.pos, "%s: %v", st.name, err)
				continue
			}
			for i, w := range words {
				binary.LittleEndian.PutUint32(img[st.pc+uint32(i*4):], w)
			}
		}
	}
	return img
}
