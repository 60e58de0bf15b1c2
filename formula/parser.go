/*
parser.go - Lexer and recursive-descent parser for formula expressions

GRAMMAR:
  expression := term (('+' | '-') term)*
  term       := unary (('*' | '/') unary)*
  unary      := '-' unary | primary
  primary    := number | variable | '{' identifier '}' | '(' expression ')'

TOKENS:
  Numbers may contain a single decimal point. Variables are bare
  identifiers ([a-zA-Z_][a-zA-Z0-9_]*) or legacy brace-delimited tokens
  ({Ctc}). Whitespace is insignificant everywhere.
*/
package formula

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEXER
// =============================================================================

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokVariable
	tokOperator
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (lx *lexer) next() (token, error) {
	for lx.pos < len(lx.input) && unicode.IsSpace(rune(lx.input[lx.pos])) {
		lx.pos++
	}
	if lx.pos >= len(lx.input) {
		return token{kind: tokEOF, pos: lx.pos}, nil
	}

	start := lx.pos
	c := lx.input[lx.pos]

	switch {
	case c == '(':
		lx.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		lx.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == '+' || c == '-' || c == '*' || c == '/':
		lx.pos++
		return token{kind: tokOperator, text: string(c), pos: start}, nil
	case c == '{':
		end := strings.IndexByte(lx.input[lx.pos:], '}')
		if end < 0 {
			return token{}, &ParseError{Position: start, Message: "unclosed variable brace"}
		}
		name := strings.TrimSpace(lx.input[lx.pos+1 : lx.pos+end])
		if !isIdentifier(name) {
			return token{}, &ParseError{Position: start, Message: fmt.Sprintf("invalid variable name %q", name)}
		}
		lx.pos += end + 1
		return token{kind: tokVariable, text: name, pos: start}, nil
	case isDigit(c) || c == '.':
		for lx.pos < len(lx.input) && (isDigit(lx.input[lx.pos]) || lx.input[lx.pos] == '.') {
			lx.pos++
		}
		return token{kind: tokNumber, text: lx.input[start:lx.pos], pos: start}, nil
	case isIdentStart(c):
		for lx.pos < len(lx.input) && isIdentPart(lx.input[lx.pos]) {
			lx.pos++
		}
		return token{kind: tokVariable, text: lx.input[start:lx.pos], pos: start}, nil
	default:
		return token{}, &ParseError{Position: start, Message: fmt.Sprintf("unexpected character %q", string(c))}
	}
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}

// =============================================================================
// PARSER
// =============================================================================

// ParseError reports where and why parsing failed. Surfaced at authoring
// time; saved formulas are assumed parseable.
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

type parser struct {
	lx   *lexer
	tok  token
	vars []string
}

// Parse compiles an expression string into an AST. The returned slice lists
// every variable the expression references, in first-appearance order.
func Parse(input string) (Node, []string, error) {
	p := &parser{lx: &lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, nil, err
	}

	node, err := p.parseExpression()
	if err != nil {
		return nil, nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, nil, &ParseError{Position: p.tok.pos, Message: fmt.Sprintf("unexpected token %q", p.tok.text)}
	}
	return node, p.vars, nil
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parseExpression() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOperator && (p.tok.text == "+" || p.tok.text == "-") {
		op := Operator(p.tok.text[0])
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOperator && (p.tok.text == "*" || p.tok.text == "/") {
		op := Operator(p.tok.text[0])
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.tok.kind == tokOperator && p.tok.text == "-" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Unary minus desugars to 0 - operand.
		return &BinaryOp{Op: OpSub, Left: &Literal{Value: decimal.Zero}, Right: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.tok.kind {
	case tokNumber:
		val, err := decimal.NewFromString(p.tok.text)
		if err != nil {
			return nil, &ParseError{Position: p.tok.pos, Message: fmt.Sprintf("invalid number %q", p.tok.text)}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Value: val}, nil

	case tokVariable:
		name := p.tok.text
		p.recordVar(name)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &VariableRef{Name: name}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, &ParseError{Position: p.tok.pos, Message: "expected closing parenthesis"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil

	case tokEOF:
		return nil, &ParseError{Position: p.tok.pos, Message: "unexpected end of expression"}

	default:
		return nil, &ParseError{Position: p.tok.pos, Message: fmt.Sprintf("unexpected token %q", p.tok.text)}
	}
}

func (p *parser) recordVar(name string) {
	for _, v := range p.vars {
		if v == name {
			return
		}
	}
	p.vars = append(p.vars, name)
}
