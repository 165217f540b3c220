package tsm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Pos is a 1-based source position.
type Pos struct {
	Line int `cbor:"1,keyasint"`
	Col  int `cbor:"2,keyasint"`
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Before orders positions by line then column.
func (p Pos) Before(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

// TokenKind classifies lexer output.
type TokenKind int

const (
	TkEOF TokenKind = iota
	TkError
	TkIdent
	TkCounter
	TkFlag
	TkLiteral
	TkKeyword
	TkLParen
	TkRParen
	TkColon
	TkSemi
	TkCompare
	TkAnd
	TkOr
)

var tokenKindNames = [...]string{
	TkEOF:     "end of input",
	TkError:   "error",
	TkIdent:   "identifier",
	TkCounter: "counter",
	TkFlag:    "flag",
	TkLiteral: "literal",
	TkKeyword: "keyword",
	TkLParen:  "'('",
	TkRParen:  "')'",
	TkColon:   "':'",
	TkSemi:    "';'",
	TkCompare: "comparison operator",
	TkAnd:     "'&&'",
	TkOr:      "'||'",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "token(" + strconv.Itoa(int(k)) + ")"
}

var keywords = map[string]bool{
	"state":             true,
	"if":                true,
	"elseif":            true,
	"else":              true,
	"endif":             true,
	"then":              true,
	"goto":              true,
	"trigger":           true,
	"set_flag":          true,
	"clear_flag":        true,
	"reset_counter":     true,
	"increment_counter": true,
}

// Token is one lexeme. For counters and flags Index holds the resource number.
type Token struct {
	Kind  TokenKind
	Text  string
	Index int
	Pos   Pos
}

func (t Token) is(kind TokenKind, text string) bool {
	return t.Kind == kind && t.Text == text
}

func (t Token) describe() string {
	switch t.Kind {
	case TkEOF:
		return "end of input"
	case TkKeyword:
		return fmt.Sprintf("keyword '%s'", t.Text)
	default:
		return fmt.Sprintf("%q", t.Text)
	}
}

// lex tokenizes the whole input. Lexical errors are returned as diagnostics
// and the offending characters are skipped.
func lex(r io.Reader) ([]Token, []Diagnostic, error) {
	var toks []Token
	var diags []Diagnostic
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		lt, ld := lexLine(scanner.Text(), line)
		toks = append(toks, lt...)
		diags = append(diags, ld...)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	toks = append(toks, Token{Kind: TkEOF, Pos: Pos{Line: line + 1, Col: 1}})
	return toks, diags, nil
}

func lexLine(s string, line int) ([]Token, []Diagnostic) {
	var toks []Token
	var diags []Diagnostic
	i := 0
	for i < len(s) {
		c := s[i]
		pos := Pos{Line: line, Col: i + 1}
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			return toks, diags
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			return toks, diags
		case c == '(':
			toks = append(toks, Token{Kind: TkLParen, Text: "(", Pos: pos})
			i++
		case c == ')':
			toks = append(toks, Token{Kind: TkRParen, Text: ")", Pos: pos})
			i++
		case c == ':':
			toks = append(toks, Token{Kind: TkColon, Text: ":", Pos: pos})
			i++
		case c == ';':
			toks = append(toks, Token{Kind: TkSemi, Text: ";", Pos: pos})
			i++
		case c == '&' && i+1 < len(s) && s[i+1] == '&':
			toks = append(toks, Token{Kind: TkAnd, Text: "&&", Pos: pos})
			i += 2
		case c == '|' && i+1 < len(s) && s[i+1] == '|':
			toks = append(toks, Token{Kind: TkOr, Text: "||", Pos: pos})
			i += 2
		case c == '=' || c == '!' || c == '<' || c == '>':
			n := 1
			if i+1 < len(s) && s[i+1] == '=' {
				n = 2
			}
			op := s[i : i+n]
			if op == "=" || op == "!" {
				diags = append(diags, Diagnostic{Pos: pos, Msg: fmt.Sprintf("Unexpected character %q.", op)})
			} else {
				toks = append(toks, Token{Kind: TkCompare, Text: op, Pos: pos})
			}
			i += n
		case c == '"':
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				diags = append(diags, Diagnostic{Pos: pos, Msg: "Unterminated quoted name."})
				return toks, diags
			}
			toks = append(toks, Token{Kind: TkIdent, Text: s[i+1 : i+1+end], Pos: pos})
			i += end + 2
		case c == '$':
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			toks = append(toks, resourceToken(s[i:j], pos, &diags))
			i = j
		case isDigit(c) || c == '\'':
			j := i
			for j < len(s) && (isIdentChar(s[j]) || s[j] == '\'') {
				j++
			}
			toks = append(toks, Token{Kind: TkLiteral, Text: s[i:j], Pos: pos})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(s) {
				if s[j] == '[' {
					end := strings.IndexByte(s[j:], ']')
					if end < 0 {
						break
					}
					j += end + 1
					continue
				}
				if !isIdentChar(s[j]) && s[j] != '/' && s[j] != '.' {
					break
				}
				j++
			}
			text := s[i:j]
			kind := TkIdent
			if keywords[text] {
				kind = TkKeyword
			}
			toks = append(toks, Token{Kind: kind, Text: text, Pos: pos})
			i = j
		default:
			diags = append(diags, Diagnostic{Pos: pos, Msg: fmt.Sprintf("Unexpected character %q.", c)})
			i++
		}
	}
	return toks, diags
}

func resourceToken(text string, pos Pos, diags *[]Diagnostic) Token {
	for _, r := range []struct {
		prefix string
		kind   TokenKind
	}{{"$counter", TkCounter}, {"$flag", TkFlag}} {
		if rest, ok := strings.CutPrefix(text, r.prefix); ok {
			n, err := strconv.Atoi(rest)
			if err == nil && n >= 0 {
				return Token{Kind: r.kind, Text: text, Index: n, Pos: pos}
			}
		}
	}
	*diags = append(*diags, Diagnostic{Pos: pos, Msg: fmt.Sprintf("Unknown identifier %q.", text)})
	return Token{Kind: TkError, Text: text, Pos: pos}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }
