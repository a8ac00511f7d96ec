package espresso

import (
	"math"
	"strings"
)

// precedence of binary operators; higher binds tighter.
var precedence = map[TokenType]int{
	TOKEN_MULTIPLY: 2,
	TOKEN_DIVIDE:   2,
	TOKEN_PLUS:     1,
	TOKEN_MINUS:    1,
	TOKEN_EQ:       0,
	TOKEN_LT:       0,
	TOKEN_LE:       0,
	TOKEN_GT:       0,
	TOKEN_GE:       0,
}

// Postfix is an expression in reverse Polish order.
type Postfix []ExprToken

func (p Postfix) String() string {
	parts := make([]string, len(p))
	for i, tok := range p {
		parts[i] = tok.Value
	}
	return strings.Join(parts, " ")
}

func (p Postfix) comparisons() int {
	n := 0
	for _, tok := range p {
		if tok.isComparison() {
			n++
		}
	}
	return n
}

// ToPostfix converts an infix expression to postfix form using an operator
// stack and an output queue.
func ToPostfix(expr string) (Postfix, error) {
	tokens, err := Tokenize(expr)
	if err != nil {
		return nil, err
	}

	out := make(Postfix, 0, len(tokens))
	var ops []ExprToken

	for _, tok := range tokens {
		switch {
		case tok.Type == TOKEN_NUMBER || tok.Type == TOKEN_IDENTIFIER:
			out = append(out, tok)
		case tok.Type == TOKEN_LPAREN:
			ops = append(ops, tok)
		case tok.Type == TOKEN_RPAREN:
			matched := false
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top.Type == TOKEN_LPAREN {
					matched = true
					break
				}
				out = append(out, top)
			}
			if !matched {
				return nil, syntaxError("unmatched ')' in %q", expr)
			}
		case tok.isOperator():
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.Type == TOKEN_LPAREN || precedence[top.Type] < precedence[tok.Type] {
					break
				}
				out = append(out, top)
				ops = ops[:len(ops)-1]
			}
			ops = append(ops, tok)
		default:
			return nil, newError(KindOperator, "unsupported token %q", tok.Value)
		}
	}

	for len(ops) > 0 {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top.Type == TOKEN_LPAREN {
			return nil, syntaxError("unmatched '(' in %q", expr)
		}
		out = append(out, top)
	}
	return out, nil
}

// operand is an evaluation stack entry: an integer or a comparison result.
type operand struct {
	num     int
	truth   bool
	boolean bool
}

// Evaluate runs the postfix expression against vars. The result is either an
// integer or, for comparisons, a boolean (isBool reports which).
func (p Postfix) Evaluate(vars *VariableStore) (num int, truth bool, isBool bool, err error) {
	stack := make([]operand, 0, len(p))

	pop := func(op ExprToken) (operand, error) {
		if len(stack) == 0 {
			return operand{}, syntaxError("operator %s is missing an operand", op.Value)
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for _, tok := range p {
		switch tok.Type {
		case TOKEN_NUMBER:
			stack = append(stack, operand{num: tok.NumVal})
			continue
		case TOKEN_IDENTIFIER:
			v, err := vars.Get(tok.Ident)
			if err != nil {
				return 0, false, false, err
			}
			stack = append(stack, operand{num: v})
			continue
		}

		b, err := pop(tok)
		if err != nil {
			return 0, false, false, err
		}
		a, err := pop(tok)
		if err != nil {
			return 0, false, false, err
		}
		result, err := apply(tok, a, b)
		if err != nil {
			return 0, false, false, err
		}
		stack = append(stack, result)
	}

	if len(stack) != 1 {
		if len(stack) == 0 {
			return 0, false, false, syntaxError("empty expression")
		}
		return 0, false, false, syntaxError("malformed expression %q", p.String())
	}
	top := stack[0]
	return top.num, top.truth, top.boolean, nil
}

func apply(op ExprToken, a, b operand) (operand, error) {
	if a.boolean || b.boolean {
		return operand{}, newError(KindOperator, "operator %s cannot be applied to a comparison result", op.Value)
	}
	switch op.Type {
	case TOKEN_PLUS:
		r := a.num + b.num
		if (a.num^r)&(b.num^r) < 0 {
			return operand{}, overflowError(a.num, op, b.num)
		}
		return operand{num: r}, nil
	case TOKEN_MINUS:
		r := a.num - b.num
		if (a.num^b.num)&(a.num^r) < 0 {
			return operand{}, overflowError(a.num, op, b.num)
		}
		return operand{num: r}, nil
	case TOKEN_MULTIPLY:
		if a.num == 0 || b.num == 0 {
			return operand{num: 0}, nil
		}
		r := a.num * b.num
		if r/b.num != a.num || (a.num == -1 && b.num == math.MinInt) || (b.num == -1 && a.num == math.MinInt) {
			return operand{}, overflowError(a.num, op, b.num)
		}
		return operand{num: r}, nil
	case TOKEN_DIVIDE:
		if b.num == 0 {
			return operand{}, newError(KindArithmetic, "division by zero")
		}
		if a.num == math.MinInt && b.num == -1 {
			return operand{}, overflowError(a.num, op, b.num)
		}
		return operand{num: a.num / b.num}, nil
	case TOKEN_EQ:
		return operand{truth: a.num == b.num, boolean: true}, nil
	case TOKEN_LT:
		return operand{truth: a.num < b.num, boolean: true}, nil
	case TOKEN_LE:
		return operand{truth: a.num <= b.num, boolean: true}, nil
	case TOKEN_GT:
		return operand{truth: a.num > b.num, boolean: true}, nil
	case TOKEN_GE:
		return operand{truth: a.num >= b.num, boolean: true}, nil
	}
	return operand{}, newError(KindOperator, "unknown operator %q", op.Value)
}

func overflowError(a int, op ExprToken, b int) error {
	return newError(KindArithmetic, "integer overflow in %d %s %d", a, op.Value, b)
}

// EvalArithmetic evaluates an integer expression. Comparison operators are
// rejected with OperatorError.
func EvalArithmetic(expr string, vars *VariableStore) (int, error) {
	postfix, err := ToPostfix(expr)
	if err != nil {
		return 0, err
	}
	for _, tok := range postfix {
		if tok.isComparison() {
			return 0, newError(KindOperator, "comparison %s is only allowed in an if condition", tok.Value)
		}
	}
	num, _, _, err := postfix.Evaluate(vars)
	return num, err
}

// EvalCondition evaluates an if condition, which must contain exactly one
// comparison operator.
func EvalCondition(expr string, vars *VariableStore) (bool, error) {
	postfix, err := ToPostfix(expr)
	if err != nil {
		return false, err
	}
	switch n := postfix.comparisons(); {
	case n == 0:
		return false, syntaxError("condition %q has no comparison operator", expr)
	case n > 1:
		return false, syntaxError("condition %q has %d comparison operators, expected one", expr, n)
	}
	_, truth, isBool, err := postfix.Evaluate(vars)
	if err != nil {
		return false, err
	}
	if !isBool {
		return false, syntaxError("condition %q does not produce a comparison result", expr)
	}
	return truth, nil
}
