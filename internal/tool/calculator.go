package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"omnigate/internal/domain"
)

// CalculatorTool evaluates basic arithmetic expressions. It is stateless
// and ignores the invocation context.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (t *CalculatorTool) Name() string { return "calculator" }
func (t *CalculatorTool) Description() string {
	return "Evaluate an arithmetic expression with + - * / and parentheses. Use for any math instead of computing yourself."
}
func (t *CalculatorTool) Parameters() map[string]any {
	return Parameters(
		map[string]Param{
			"expression": {Type: "string", Description: "Arithmetic expression, e.g. (2+3)*4.5"},
		},
		[]string{"expression"},
	)
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]any, inv *domain.ToolInvocation) (string, error) {
	expr := ArgString(args, "expression")
	if expr == "" {
		return "", fmt.Errorf("missing argument: expression")
	}
	p := &exprParser{input: strings.TrimSpace(expr)}
	v, err := p.parseExpr()
	if err != nil {
		return "", fmt.Errorf("cannot evaluate %q: %w", expr, err)
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return "", fmt.Errorf("cannot evaluate %q: unexpected %q", expr, p.input[p.pos:])
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}

// exprParser is a recursive-descent parser over + - * / and parentheses.
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
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

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if p.input[p.pos] == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	if p.input[p.pos] == '-' {
		p.pos++
		v, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(rune(p.input[p.pos])) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}
