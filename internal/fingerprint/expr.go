package fingerprint

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnsupportedExpression is returned by Eval for anything outside plain
// arithmetic.
var ErrUnsupportedExpression = errors.New("unsupported expression")

// Eval evaluates an arithmetic expression of decimal numbers, + - * /,
// unary minus and parentheses with the usual precedence. Any other token
// is rejected; nothing is ever executed.
func Eval(expr string) (float64, error) {
	p := &exprParser{src: expr}
	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrUnsupportedExpression, p.src[p.pos], p.pos)
	}
	return v, nil
}

// exprParser is a recursive-descent parser over:
//
//	sum     = product { ("+" | "-") product }
//	product = unary { ("*" | "/") unary }
//	unary   = ("+" | "-") unary | primary
//	primary = number | "(" sum ")"
type exprParser struct {
	src   string
	pos   int
	depth int
}

const maxExprDepth = 64

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp('+', '-')
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp('*', '/')
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
			continue
		}
		if right == 0 {
			return 0, fmt.Errorf("%w: division by zero", ErrUnsupportedExpression)
		}
		left /= right
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if op, ok := p.peekOp('+', '-'); ok {
		p.pos++
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxExprDepth {
			return 0, fmt.Errorf("%w: nesting too deep", ErrUnsupportedExpression)
		}
		v, err := p.parseUnary()
		if op == '-' {
			v = -v
		}
		return v, err
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, fmt.Errorf("%w: unexpected end", ErrUnsupportedExpression)
	}

	if p.src[p.pos] == '(' {
		p.pos++
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxExprDepth {
			return 0, fmt.Errorf("%w: nesting too deep", ErrUnsupportedExpression)
		}
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return 0, fmt.Errorf("%w: missing )", ErrUnsupportedExpression)
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrUnsupportedExpression, p.src[p.pos], p.pos)
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrUnsupportedExpression, p.src[start:p.pos])
	}
	return v, nil
}

func (p *exprParser) peekOp(ops ...byte) (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	for _, op := range ops {
		if p.src[p.pos] == op {
			return op, true
		}
	}
	return 0, false
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
