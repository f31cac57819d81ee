package kernel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Activation errors.
var (
	// ErrEmptyActivation is returned when the activation source is blank.
	ErrEmptyActivation = errors.New("kernel: activation source is empty")

	// ErrMissingReturn is returned when the activation never returns a value.
	ErrMissingReturn = errors.New("kernel: activation must end with a return statement")
)

// Activation is a compiled per-channel activation function: a scalar float
// to float mapping applied after the convolution step.
//
// The accepted grammar is a narrow WGSL subset:
//
//	program := { "let" ident "=" expr ";" } "return" expr ";"
//	expr    := arithmetic over floats, "x", let bindings, and builtin calls
//
// Builtins cover the WGSL scalar math functions (abs, sqrt, pow, exp, tanh,
// clamp, mix, ...). Anything outside the grammar, including characters that
// could escape the surrounding function body, is rejected at compile time.
type Activation struct {
	src    string
	lets   []letBinding
	ret    exprNode
	envLen int
}

type letBinding struct {
	name string
	expr exprNode
}

// CompileActivation parses and compiles an activation source fragment.
// Returns an error describing the first offending token on invalid input.
func CompileActivation(src string) (*Activation, error) {
	toks, err := lexActivation(src)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, ErrEmptyActivation
	}
	p := &actParser{toks: toks, scope: []string{"x"}}
	act, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	act.src = src
	return act, nil
}

// Source returns the original source fragment.
func (a *Activation) Source() string { return a.src }

// Eval applies the activation to one value.
func (a *Activation) Eval(x float32) float32 {
	env := make([]float32, a.envLen)
	env[0] = x
	for i, l := range a.lets {
		env[i+1] = l.expr.eval(env)
	}
	return a.ret.eval(env)
}

// ===================================== Lexer ==================================

type tokKind int

const (
	tokIdent tokKind = iota
	tokNumber
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokComma
	tokSemi
	tokAssign
)

type actToken struct {
	kind tokKind
	text string
	pos  int
}

func lexActivation(src string) ([]actToken, error) {
	var toks []actToken
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
			start := i
			for i < len(src) && (isIdentChar(src[i])) {
				i++
			}
			toks = append(toks, actToken{tokIdent, src[start:i], start})
		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			// WGSL float suffix.
			if i < len(src) && (src[i] == 'f' || src[i] == 'h') {
				i++
			}
			toks = append(toks, actToken{tokNumber, src[start:i], start})
		case c == '+':
			toks = append(toks, actToken{tokPlus, "+", i})
			i++
		case c == '-':
			toks = append(toks, actToken{tokMinus, "-", i})
			i++
		case c == '*':
			toks = append(toks, actToken{tokStar, "*", i})
			i++
		case c == '/':
			toks = append(toks, actToken{tokSlash, "/", i})
			i++
		case c == '(':
			toks = append(toks, actToken{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, actToken{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, actToken{tokComma, ",", i})
			i++
		case c == ';':
			toks = append(toks, actToken{tokSemi, ";", i})
			i++
		case c == '=':
			toks = append(toks, actToken{tokAssign, "=", i})
			i++
		default:
			return nil, fmt.Errorf("kernel: activation: illegal character %q at offset %d", c, i)
		}
	}
	return toks, nil
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// ==================================== Parser ==================================

type actParser struct {
	toks  []actToken
	pos   int
	scope []string
}

func (p *actParser) peek() (actToken, bool) {
	if p.pos >= len(p.toks) {
		return actToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *actParser) next() (actToken, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *actParser) expect(kind tokKind, what string) (actToken, error) {
	t, ok := p.next()
	if !ok {
		return actToken{}, fmt.Errorf("kernel: activation: expected %s at end of input", what)
	}
	if t.kind != kind {
		return actToken{}, fmt.Errorf("kernel: activation: expected %s, found %q at offset %d", what, t.text, t.pos)
	}
	return t, nil
}

func (p *actParser) parseProgram() (*Activation, error) {
	act := &Activation{}
	for {
		t, ok := p.peek()
		if !ok {
			return nil, ErrMissingReturn
		}
		if t.kind != tokIdent || t.text != "let" {
			break
		}
		p.pos++
		name, err := p.expect(tokIdent, "binding name")
		if err != nil {
			return nil, err
		}
		if p.resolve(name.text) >= 0 {
			return nil, fmt.Errorf("kernel: activation: %q redeclared at offset %d", name.text, name.pos)
		}
		if _, err := p.expect(tokAssign, "'='"); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemi, "';'"); err != nil {
			return nil, err
		}
		p.scope = append(p.scope, name.text)
		act.lets = append(act.lets, letBinding{name: name.text, expr: expr})
	}

	t, err := p.expect(tokIdent, "'return'")
	if err != nil {
		return nil, err
	}
	if t.text != "return" {
		return nil, fmt.Errorf("kernel: activation: expected 'return', found %q at offset %d", t.text, t.pos)
	}
	ret, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi, "';'"); err != nil {
		return nil, err
	}
	if t, ok := p.peek(); ok {
		return nil, fmt.Errorf("kernel: activation: trailing %q after return at offset %d", t.text, t.pos)
	}
	act.ret = ret
	act.envLen = len(p.scope)
	return act, nil
}

func (p *actParser) resolve(name string) int {
	for i, n := range p.scope {
		if n == name {
			return i
		}
	}
	return -1
}

func (p *actParser) parseExpr() (exprNode, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || (t.kind != tokPlus && t.kind != tokMinus) {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		op := byte('+')
		if t.kind == tokMinus {
			op = '-'
		}
		lhs = binNode{op: op, lhs: lhs, rhs: rhs}
	}
}

func (p *actParser) parseTerm() (exprNode, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || (t.kind != tokStar && t.kind != tokSlash) {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		op := byte('*')
		if t.kind == tokSlash {
			op = '/'
		}
		lhs = binNode{op: op, lhs: lhs, rhs: rhs}
	}
}

func (p *actParser) parseUnary() (exprNode, error) {
	t, ok := p.peek()
	if ok && t.kind == tokMinus {
		p.pos++
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negNode{arg: arg}, nil
	}
	if ok && t.kind == tokPlus {
		p.pos++
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *actParser) parsePrimary() (exprNode, error) {
	t, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("kernel: activation: unexpected end of input")
	}
	switch t.kind {
	case tokNumber:
		text := t.text
		if text[len(text)-1] == 'f' || text[len(text)-1] == 'h' {
			text = text[:len(text)-1]
		}
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, fmt.Errorf("kernel: activation: bad number %q at offset %d", t.text, t.pos)
		}
		return numNode(float32(v)), nil
	case tokLParen:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case tokIdent:
		if nt, ok := p.peek(); ok && nt.kind == tokLParen {
			return p.parseCall(t)
		}
		idx := p.resolve(t.text)
		if idx < 0 {
			return nil, fmt.Errorf("kernel: activation: unknown identifier %q at offset %d", t.text, t.pos)
		}
		return varNode(idx), nil
	default:
		return nil, fmt.Errorf("kernel: activation: unexpected %q at offset %d", t.text, t.pos)
	}
}

func (p *actParser) parseCall(name actToken) (exprNode, error) {
	fn, ok := builtins[name.text]
	if !ok {
		return nil, fmt.Errorf("kernel: activation: unknown function %q at offset %d", name.text, name.pos)
	}
	p.pos++ // consume '('
	var args []exprNode
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		t, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("kernel: activation: unterminated call to %q", name.text)
		}
		if t.kind == tokRParen {
			break
		}
		if t.kind != tokComma {
			return nil, fmt.Errorf("kernel: activation: expected ',' or ')', found %q at offset %d", t.text, t.pos)
		}
	}
	if len(args) != fn.arity {
		return nil, fmt.Errorf("kernel: activation: %s takes %d argument(s), got %d at offset %d",
			name.text, fn.arity, len(args), name.pos)
	}
	return callNode{fn: fn.eval, args: args}, nil
}

// ================================== Expression ================================

type exprNode interface {
	eval(env []float32) float32
}

type numNode float32

func (n numNode) eval([]float32) float32 { return float32(n) }

type varNode int

func (n varNode) eval(env []float32) float32 { return env[n] }

type negNode struct{ arg exprNode }

func (n negNode) eval(env []float32) float32 { return -n.arg.eval(env) }

type binNode struct {
	op       byte
	lhs, rhs exprNode
}

func (n binNode) eval(env []float32) float32 {
	l, r := n.lhs.eval(env), n.rhs.eval(env)
	switch n.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default:
		return l / r
	}
}

type callNode struct {
	fn   func([]float32) float32
	args []exprNode
}

func (n callNode) eval(env []float32) float32 {
	vals := make([]float32, len(n.args))
	for i, a := range n.args {
		vals[i] = a.eval(env)
	}
	return n.fn(vals)
}

// =================================== Builtins =================================

type builtin struct {
	arity int
	eval  func([]float32) float32
}

func fn1(f func(float64) float64) builtin {
	return builtin{1, func(a []float32) float32 { return float32(f(float64(a[0]))) }}
}

var builtins = map[string]builtin{
	"abs":   fn1(math.Abs),
	"ceil":  fn1(math.Ceil),
	"cos":   fn1(math.Cos),
	"exp":   fn1(math.Exp),
	"exp2":  fn1(math.Exp2),
	"floor": fn1(math.Floor),
	"log":   fn1(math.Log),
	"log2":  fn1(math.Log2),
	"round": fn1(math.RoundToEven),
	"sin":   fn1(math.Sin),
	"sqrt":  fn1(math.Sqrt),
	"tan":   fn1(math.Tan),
	"tanh":  fn1(math.Tanh),
	"fract": fn1(func(v float64) float64 { return v - math.Floor(v) }),
	"inverseSqrt": fn1(func(v float64) float64 { return 1 / math.Sqrt(v) }),
	"sign": builtin{1, func(a []float32) float32 {
		switch {
		case a[0] > 0:
			return 1
		case a[0] < 0:
			return -1
		default:
			return 0
		}
	}},
	"max": builtin{2, func(a []float32) float32 { return float32(math.Max(float64(a[0]), float64(a[1]))) }},
	"min": builtin{2, func(a []float32) float32 { return float32(math.Min(float64(a[0]), float64(a[1]))) }},
	"pow": builtin{2, func(a []float32) float32 { return float32(math.Pow(float64(a[0]), float64(a[1]))) }},
	"step": builtin{2, func(a []float32) float32 {
		if a[1] < a[0] {
			return 0
		}
		return 1
	}},
	"clamp": builtin{3, func(a []float32) float32 { return clamp32(a[0], a[1], a[2]) }},
	"mix":   builtin{3, func(a []float32) float32 { return a[0]*(1-a[2]) + a[1]*a[2] }},
	"smoothstep": builtin{3, func(a []float32) float32 {
		t := clamp32((a[2]-a[0])/(a[1]-a[0]), 0, 1)
		return t * t * (3 - 2*t)
	}},
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
