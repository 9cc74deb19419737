package expr

import (
	"fmt"
	"strconv"
)

type node interface {
	eval(env Env) (Value, error)
}

type (
	literalNode struct{ v Value }
	identNode   struct{ name string }
	attrNode    struct {
		x    node
		name string
	}
	indexNode struct{ x, idx node }
	unaryNode struct {
		op string
		x  node
	}
	binaryNode struct {
		op   string
		l, r node
	}
	testNode struct {
		x      node
		name   string
		negate bool
		args   []node
	}
	filterNode struct {
		x    node
		name string
		args []node
	}
	condNode struct{ then, cond, els node }
	listNode struct{ elems []node }
	dictNode struct{ keys, vals []node }
)

// SyntaxError 表达式语法错误
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q at %d: %s", e.Expr, e.Pos, e.Msg)
}

type parser struct {
	src    string
	tokens []token
	pos    int
}

func parse(src string) (node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, &SyntaxError{Expr: src, Msg: err.Error()}
	}
	p := &parser{src: src, tokens: tokens}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf("unexpected %s", tok)
	}
	return n, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Expr: p.src, Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isOp(text string) bool {
	tok := p.peek()
	return tok.kind == tokOp && tok.text == text
}

func (p *parser) isKeyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.text == word
}

func (p *parser) expectOp(text string) error {
	if !p.isOp(text) {
		return p.errorf("expected %q, got %s", text, p.peek())
	}
	p.next()
	return nil
}

func (p *parser) parseExpr() (node, error) {
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("if") {
		return then, nil
	}
	p.next()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	var els node
	if p.isKeyword("else") {
		p.next()
		if els, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return &condNode{then: then, cond: cond, els: els}, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "or", l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "and", l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isKeyword("not") {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "not", x: x}, nil
	}
	return p.parseCompare()
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch {
		case tok.kind == tokOp && compareOps[tok.text]:
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: tok.text, l: left, r: right}

		case p.isKeyword("in"):
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "in", l: left, r: right}

		case p.isKeyword("not") && p.tokens[p.pos+1].kind == tokIdent && p.tokens[p.pos+1].text == "in":
			p.next()
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "not in", l: left, r: right}

		case p.isKeyword("is"):
			p.next()
			t := &testNode{x: left}
			if p.isKeyword("not") {
				p.next()
				t.negate = true
			}
			name := p.next()
			if name.kind != tokIdent {
				return nil, p.errorf("expected test name after 'is'")
			}
			t.name = name.text
			if p.isOp("(") {
				if t.args, err = p.parseArgs(); err != nil {
					return nil, err
				}
			}
			left = t

		default:
			return left, nil
		}
	}
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") || p.isOp("~") {
		op := p.next().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("-") || p.isOp("+") {
		op := p.next().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.next()
			tok := p.next()
			if tok.kind != tokIdent && tok.kind != tokNumber {
				return nil, p.errorf("expected attribute name after '.'")
			}
			x = &attrNode{x: x, name: tok.text}

		case p.isOp("["):
			p.next()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &indexNode{x: x, idx: idx}

		case p.isOp("|"):
			p.next()
			tok := p.next()
			if tok.kind != tokIdent {
				return nil, p.errorf("expected filter name after '|'")
			}
			f := &filterNode{x: x, name: tok.text}
			if p.isOp("(") {
				if f.args, err = p.parseArgs(); err != nil {
					return nil, err
				}
			}
			x = f

		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgs() ([]node, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var args []node
	for !p.isOp(")") {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	return args, p.expectOp(")")
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber:
		p.next()
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", tok.text)
		}
		return &literalNode{v: Number(n)}, nil

	case tokString:
		p.next()
		return &literalNode{v: String(tok.text)}, nil

	case tokIdent:
		switch tok.text {
		case "true", "True":
			p.next()
			return &literalNode{v: Bool(true)}, nil
		case "false", "False":
			p.next()
			return &literalNode{v: Bool(false)}, nil
		case "none", "None", "null":
			p.next()
			return &literalNode{v: Null()}, nil
		case "and", "or", "not", "in", "is", "if", "else":
			return nil, p.errorf("unexpected keyword %q", tok.text)
		}
		p.next()
		return &identNode{name: tok.text}, nil

	case tokOp:
		switch tok.text {
		case "(":
			p.next()
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return x, p.expectOp(")")

		case "[":
			p.next()
			list := &listNode{}
			for !p.isOp("]") {
				el, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				list.elems = append(list.elems, el)
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			return list, p.expectOp("]")

		case "{":
			p.next()
			dict := &dictNode{}
			for !p.isOp("}") {
				k, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expectOp(":"); err != nil {
					return nil, err
				}
				v, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				dict.keys = append(dict.keys, k)
				dict.vals = append(dict.vals, v)
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			return dict, p.expectOp("}")
		}
	}
	return nil, p.errorf("unexpected %s", tok)
}
