package tsm

import (
	"fmt"

	"chipscope/internal/ila"
)

// parser builds an unresolved Program from tokens. Syntax errors are
// collected and the parser resynchronises at ';', 'endif' and 'state'.
type parser struct {
	toks  []Token
	pos   int
	diags []Diagnostic
}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != TkEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind TokenKind, text string) bool {
	t := p.peek()
	if t.Kind == kind && (text == "" || t.Text == text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) errorf(pos Pos, format string, args ...any) {
	p.diags = append(p.diags, Diagnostic{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) atKeyword(words ...string) bool {
	t := p.peek()
	if t.Kind != TkKeyword {
		return false
	}
	for _, w := range words {
		if t.Text == w {
			return true
		}
	}
	return false
}

// atBlockEnd is true where an action list stops.
func (p *parser) atBlockEnd() bool {
	return p.peek().Kind == TkEOF || p.atKeyword("state", "if", "elseif", "else", "endif")
}

func (p *parser) skipToState() {
	for p.peek().Kind != TkEOF && !p.atKeyword("state") {
		p.next()
	}
}

func (p *parser) parseProgram() *Program {
	prog := &Program{}
	for p.peek().Kind != TkEOF {
		if !p.atKeyword("state") {
			t := p.peek()
			p.errorf(t.Pos, "Expected 'state', found %s.", t.describe())
			p.next()
			p.skipToState()
			continue
		}
		prog.States = append(prog.States, p.parseState())
	}
	return prog
}

func (p *parser) parseState() State {
	kw := p.next()
	s := State{Pos: kw.Pos}
	if t := p.peek(); t.Kind == TkIdent {
		p.next()
		s.Name = t.Text
		s.Pos = t.Pos
	} else {
		p.errorf(t.Pos, "Expected state name after 'state', found %s.", t.describe())
	}
	if !p.accept(TkColon, "") {
		p.errorf(p.peek().Pos, "Expected ':' after state name.")
	}

	if p.atKeyword("if") {
		s.Branches = p.parseIf()
	} else {
		pos := p.peek().Pos
		acts := p.parseActions()
		s.Branches = []Branch{{Actions: acts, Pos: pos}}
	}
	if !p.atKeyword("state") && p.peek().Kind != TkEOF {
		t := p.peek()
		if p.atKeyword("if") {
			p.errorf(t.Pos, "Conditional block must start the body of state %q.", s.Name)
		} else {
			p.errorf(t.Pos, "Unexpected %s in state %q.", t.describe(), s.Name)
		}
		p.skipToState()
	}
	return s
}

func (p *parser) parseIf() []Branch {
	var branches []Branch
	t := p.next() // if
	cond := p.parseGuard()
	branches = append(branches, Branch{Cond: cond, Actions: p.parseActions(), Pos: t.Pos})
	for p.atKeyword("elseif") {
		t = p.next()
		cond = p.parseGuard()
		branches = append(branches, Branch{Cond: cond, Actions: p.parseActions(), Pos: t.Pos})
	}
	if p.atKeyword("else") {
		t = p.next()
		branches = append(branches, Branch{Actions: p.parseActions(), Pos: t.Pos})
	}
	if !p.accept(TkKeyword, "endif") {
		t = p.peek()
		p.errorf(t.Pos, "Expected 'endif', found %s.", t.describe())
		if p.atKeyword("elseif", "else") {
			// Skip the stray arm up to its endif.
			for p.peek().Kind != TkEOF && !p.atKeyword("state", "endif") {
				p.next()
			}
			p.accept(TkKeyword, "endif")
		}
	}
	return branches
}

// parseGuard parses "( cond ) then". A malformed condition is reported once
// and the parser skips to 'then'.
func (p *parser) parseGuard() *Cond {
	open := p.accept(TkLParen, "")
	if !open {
		p.errorf(p.peek().Pos, "Expected '(' before condition.")
	}
	cond := p.parseOr()
	if cond == nil {
		for p.peek().Kind != TkEOF && !p.atKeyword("then") && !p.atBlockEnd() && p.peek().Kind != TkSemi {
			p.next()
		}
	} else if open && !p.accept(TkRParen, "") {
		p.errorf(p.peek().Pos, "Expected ')' after condition.")
	}
	if !p.accept(TkKeyword, "then") {
		p.errorf(p.peek().Pos, "Expected 'then' after condition.")
	}
	return cond
}

func (p *parser) parseOr() *Cond {
	left := p.parseAnd()
	if left == nil {
		return nil
	}
	if p.peek().Kind != TkOr {
		return left
	}
	c := &Cond{Kind: CondOr, Args: []*Cond{left}, Pos: left.Pos}
	for p.accept(TkOr, "") {
		right := p.parseAnd()
		if right == nil {
			return nil
		}
		c.Args = append(c.Args, right)
	}
	return c
}

func (p *parser) parseAnd() *Cond {
	left := p.parseFactor()
	if left == nil {
		return nil
	}
	if p.peek().Kind != TkAnd {
		return left
	}
	c := &Cond{Kind: CondAnd, Args: []*Cond{left}, Pos: left.Pos}
	for p.accept(TkAnd, "") {
		right := p.parseFactor()
		if right == nil {
			return nil
		}
		c.Args = append(c.Args, right)
	}
	return c
}

func (p *parser) parseFactor() *Cond {
	if p.accept(TkLParen, "") {
		c := p.parseOr()
		if c == nil {
			return nil
		}
		if !p.accept(TkRParen, "") {
			p.errorf(p.peek().Pos, "Expected ')' in condition.")
			return nil
		}
		return c
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() *Cond {
	lhs := p.peek()
	if lhs.Kind != TkIdent && lhs.Kind != TkCounter {
		if lhs.Kind == TkFlag {
			p.errorf(lhs.Pos, "Flag %s cannot be used in a condition.", lhs.Text)
		} else {
			p.errorf(lhs.Pos, "Expected probe or counter in condition, found %s.", lhs.describe())
		}
		return nil
	}
	p.next()
	opTok := p.peek()
	if opTok.Kind != TkCompare {
		p.errorf(opTok.Pos, "Expected comparison operator after %q, found %s.", lhs.Text, opTok.describe())
		return nil
	}
	p.next()
	op, _ := ila.ParseOperator(opTok.Text)
	val := p.peek()
	if val.Kind != TkLiteral {
		p.errorf(val.Pos, "Expected value after '%s', found %s.", opTok.Text, val.describe())
		return nil
	}
	p.next()
	c := &Cond{Kind: CondProbe, Op: op, Pos: lhs.Pos, name: lhs.Text, literal: val.Text}
	if lhs.Kind == TkCounter {
		c.Kind = CondCounter
		c.Index = lhs.Index
	}
	return c
}

func (p *parser) parseActions() []Action {
	var acts []Action
	for !p.atBlockEnd() {
		if a, ok := p.parseAction(); ok {
			acts = append(acts, a)
		}
	}
	return acts
}

func (p *parser) parseAction() (Action, bool) {
	t := p.next()
	a := Action{Pos: t.Pos}
	ok := true
	switch {
	case t.Kind == TkSemi:
		return a, false
	case t.is(TkKeyword, "goto"):
		a.Kind = ActGoto
		if target := p.peek(); target.Kind == TkIdent {
			p.next()
			a.Target = target.Text
			a.Pos = target.Pos
		} else {
			p.errorf(target.Pos, "Expected state name after 'goto', found %s.", target.describe())
			ok = false
		}
	case t.is(TkKeyword, "trigger"):
		a.Kind = ActTrigger
	case t.is(TkKeyword, "set_flag"), t.is(TkKeyword, "clear_flag"):
		a.Kind = ActSetFlag
		if t.Text == "clear_flag" {
			a.Kind = ActClearFlag
		}
		ok = p.resource(&a, TkFlag, t.Text)
	case t.is(TkKeyword, "reset_counter"), t.is(TkKeyword, "increment_counter"):
		a.Kind = ActResetCounter
		if t.Text == "increment_counter" {
			a.Kind = ActIncrementCounter
		}
		ok = p.resource(&a, TkCounter, t.Text)
	default:
		if t.Kind != TkError {
			p.errorf(t.Pos, "Unexpected %s, expected an action.", t.describe())
		}
		p.syncAction()
		return a, false
	}
	if !ok {
		p.syncAction()
		return a, false
	}
	if !p.accept(TkSemi, "") {
		p.errorf(p.peek().Pos, "Expected ';' after %s.", a.Kind)
	}
	return a, true
}

func (p *parser) resource(a *Action, kind TokenKind, keyword string) bool {
	t := p.peek()
	if t.Kind != kind {
		p.errorf(t.Pos, "Expected %s after '%s', found %s.", kind, keyword, t.describe())
		return false
	}
	p.next()
	a.Index = t.Index
	a.Pos = t.Pos
	return true
}

// syncAction skips to the end of the current statement.
func (p *parser) syncAction() {
	for !p.atBlockEnd() {
		if p.accept(TkSemi, "") {
			return
		}
		p.next()
	}
}
