package expr

import "fmt"

// node is an AST node. Evaluation never panics and never performs I/O.
type node interface {
	eval(variables map[string]any) any
}

type literalNode struct {
	value any // float64, string, bool or nil
}

func (n literalNode) eval(map[string]any) any {
	return n.value
}

// referenceNode is a variable reference like `variables.order.amount` or `${amount}`.
type referenceNode struct {
	path []string
}

func (n referenceNode) eval(variables map[string]any) any {
	return lookup(variables, n.path)
}

type negateNode struct {
	operand node
}

func (n negateNode) eval(variables map[string]any) any {
	v, ok := toNumber(n.operand.eval(variables))
	if !ok {
		return nil
	}
	return -v
}

type arithmeticNode struct {
	op          tokenType
	left, right node
}

func (n arithmeticNode) eval(variables map[string]any) any {
	a, ok := toNumber(n.left.eval(variables))
	if !ok {
		return nil
	}
	b, ok := toNumber(n.right.eval(variables))
	if !ok {
		return nil
	}

	switch n.op {
	case tokenPlus:
		return a + b
	case tokenMinus:
		return a - b
	case tokenStar:
		return a * b
	case tokenSlash:
		return a / b // x/0 is ±Inf and 0/0 is NaN
	default:
		return nil
	}
}

type comparisonNode struct {
	op          string
	left, right node
}

func (n comparisonNode) eval(variables map[string]any) any {
	return compare(n.op, n.left.eval(variables), n.right.eval(variables))
}

// parser is a recursive descent parser with the following grammar:
//
//	comparison = sum [ ("==" | "!=" | "===" | "!==" | ">" | "<" | ">=" | "<=") sum ]
//	sum        = term { ("+" | "-") term }
//	term       = unary { ("*" | "/") unary }
//	unary      = "-" unary | primary
//	primary    = number | string | "true" | "false" | "null" | path | "${" comparison "}" | "(" sum ")"
//	path       = ident { "." ident }
type parser struct {
	tokens []token
	pos    int
}

func newParser(s string) (*parser, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	return &parser{tokens: tokens}, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.typ != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(typ tokenType, what string) (token, error) {
	t := p.next()
	if t.typ != typ {
		return t, fmt.Errorf("expected %s, but got %s", what, t)
	}
	return t, nil
}

func (p *parser) expectEOF() error {
	if t := p.peek(); t.typ != tokenEOF {
		return fmt.Errorf("unexpected %s", t)
	}
	return nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	if p.peek().typ != tokenComparison {
		return left, nil
	}

	op := p.next().text
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	if p.peek().typ == tokenComparison {
		return nil, fmt.Errorf("unexpected %s: only a single comparison is supported", p.peek())
	}

	return comparisonNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		typ := p.peek().typ
		if typ != tokenPlus && typ != tokenMinus {
			return left, nil
		}
		p.next()

		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = arithmeticNode{op: typ, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		typ := p.peek().typ
		if typ != tokenStar && typ != tokenSlash {
			return left, nil
		}
		p.next()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = arithmeticNode{op: typ, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().typ == tokenMinus {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negateNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()

	switch t.typ {
	case tokenNumber:
		return literalNode{value: t.num}, nil
	case tokenString:
		return literalNode{value: t.text}, nil
	case tokenIdent:
		switch t.text {
		case "true":
			return literalNode{value: true}, nil
		case "false":
			return literalNode{value: false}, nil
		case "null", "undefined":
			return literalNode{value: nil}, nil
		}
		return p.parsePath(t)
	case tokenDollarBrace:
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRightBrace, "'}'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokenLeftParen:
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRightParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected %s", t)
	}
}

func (p *parser) parsePath(first token) (node, error) {
	path := []string{first.text}
	for p.peek().typ == tokenDot {
		p.next()
		t, err := p.expect(tokenIdent, "identifier")
		if err != nil {
			return nil, err
		}
		path = append(path, t.text)
	}

	// `variables.x` and `x` refer to the same variable
	if path[0] == "variables" && len(path) > 1 {
		path = path[1:]
	}
	return referenceNode{path: path}, nil
}

// parseStatement parses a script statement of the form `result.<name> = <sum>`.
// If the target cannot be parsed, name is empty.
func (p *parser) parseStatement() (name string, value node, err error) {
	if t := p.next(); t.typ != tokenIdent || t.text != "result" {
		return "", nil, fmt.Errorf("statement must start with 'result.', but got %s", t)
	}
	if _, err := p.expect(tokenDot, "'.'"); err != nil {
		return "", nil, err
	}
	t, err := p.expect(tokenIdent, "result name")
	if err != nil {
		return "", nil, err
	}
	if _, err := p.expect(tokenAssign, "'='"); err != nil {
		return "", nil, err
	}

	value, err = p.parseSum()
	if err == nil {
		err = p.expectEOF()
	}
	return t.text, value, err
}
