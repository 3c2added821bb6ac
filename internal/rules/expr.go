package rules

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Limit expressions are restricted to arithmetic over numbers and named
// values: + - * / ^, parentheses, unary minus, bare identifiers and ${name}
// placeholders. Nothing else is accepted by the parser.

// ErrUndefinedVariable is wrapped by evaluation errors that reference a name
// missing from the evaluation context.
var ErrUndefinedVariable = errors.New("undefined variable")

// Expr is a parsed limit expression.
type Expr struct {
	src  string
	root node
	vars []string
}

// ParseExpr parses an arithmetic expression.
func ParseExpr(src string) (*Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, vars: map[string]struct{}{}}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	vars := make([]string, 0, len(p.vars))
	for v := range p.vars {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return &Expr{src: src, root: root, vars: vars}, nil
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Variables returns the names referenced by the expression, sorted.
func (e *Expr) Variables() []string { return e.vars }

// Eval evaluates the expression. A missing variable yields an error wrapping
// ErrUndefinedVariable. Non-finite results are errors.
func (e *Expr) Eval(vars map[string]float64) (float64, error) {
	v, err := e.root.eval(vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("expression %q is not finite", e.src)
	}
	return v, nil
}

// =============================================================================
// Tokenizer
// =============================================================================

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentPart(r rune) bool  { return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) }

func tokenize(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					i = j
					for i < len(rs) && unicode.IsDigit(rs[i]) {
						i++
					}
				}
			}
			text := string(rs[start:i])
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at offset %d", text, start)
			}
			toks = append(toks, token{kind: tokNum, text: text, num: n, pos: start})
		case r == '$':
			if i+1 >= len(rs) || rs[i+1] != '{' {
				return nil, fmt.Errorf("expected '{' after '$' at offset %d", i)
			}
			start := i
			end := i + 2
			for end < len(rs) && rs[end] != '}' {
				end++
			}
			if end >= len(rs) {
				return nil, fmt.Errorf("unterminated placeholder at offset %d", start)
			}
			name := strings.TrimSpace(string(rs[i+2 : end]))
			if !validIdent(name) {
				return nil, fmt.Errorf("invalid placeholder name %q at offset %d", name, start)
			}
			toks = append(toks, token{kind: tokIdent, text: name, pos: start})
			i = end + 1
		case isIdentStart(r):
			start := i
			for i < len(rs) && isIdentPart(rs[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[start:i]), pos: start})
		case strings.ContainsRune("+-*/^", r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(rs)})
	return toks, nil
}

func validIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if !isIdentPart(r) {
			return false
		}
	}
	return true
}

// =============================================================================
// Parser
// =============================================================================

// Grammar:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("-" | "+") unary | power
//	power   = primary [ "^" unary ]
//	primary = number | ident | "(" expr ")"
type parser struct {
	toks []token
	pos  int
	vars map[string]struct{}
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops string) bool {
	t := p.peek()
	return t.kind == tokOp && strings.Contains(ops, t.text)
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+-") {
		op := p.next().text[0]
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*/") {
		op := p.next().text[0]
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("+-") {
		op := p.next().text[0]
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == '-' {
			return neg{x: operand}, nil
		}
		return operand, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.isOp("^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binary{op: '^', l: base, r: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return num(t.num), nil
	case tokIdent:
		p.vars[t.text] = struct{}{}
		return ident(t.text), nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at offset %d", p.peek().pos)
		}
		p.next()
		return inner, nil
	case tokEOF:
		return nil, errors.New("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

// =============================================================================
// Evaluation
// =============================================================================

type node interface {
	eval(vars map[string]float64) (float64, error)
}

type num float64

func (n num) eval(map[string]float64) (float64, error) { return float64(n), nil }

type ident string

func (id ident) eval(vars map[string]float64) (float64, error) {
	v, ok := vars[string(id)]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUndefinedVariable, string(id))
	}
	return v, nil
}

type neg struct{ x node }

func (n neg) eval(vars map[string]float64) (float64, error) {
	v, err := n.x.eval(vars)
	return -v, err
}

type binary struct {
	op   byte
	l, r node
}

func (b binary) eval(vars map[string]float64) (float64, error) {
	l, err := b.l.eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := b.r.eval(vars)
	if err != nil {
		return 0, err
	}
	switch b.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		if r == 0 {
			return 0, errors.New("division by zero")
		}
		return l / r, nil
	case '^':
		return math.Pow(l, r), nil
	}
	return 0, fmt.Errorf("unknown operator %q", b.op)
}
