package expr

import (
	"strconv"
)

// funcArity is the whitelist of callable functions. Arity -1 means variadic
// with at least two arguments. There is no way to define new functions from
// formula text.
var funcArity = map[string]int{
	"min":   -1,
	"max":   -1,
	"clamp": 3,
	"round": 1,
	"sqrt":  1,
	"abs":   1,
}

type parser struct {
	lex    lexer
	tok    token
	fields map[string]int
	order  []string
}

// Parse tokenizes and parses formula text into an immutable AST.
// Any text outside the grammar returns a *ParseError naming the offending
// token and position.
func Parse(text string) (*Expr, error) {
	p := &parser{
		lex:    lexer{input: text},
		fields: make(map[string]int),
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	root, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &ParseError{Pos: p.tok.pos, Token: p.tok.text, Msg: "unexpected trailing input"}
	}

	return &Expr{root: root, source: text, fields: p.order}, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func precedence(k tokenKind) int {
	switch k {
	case tokPlus, tokMinus:
		return 1
	case tokStar, tokSlash:
		return 2
	}
	return 0
}

// parseExpr implements precedence-climbing over the binary operators.
func (p *parser) parseExpr(minPrec int) (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		prec := precedence(p.tok.kind)
		if prec == 0 || prec < minPrec {
			return left, nil
		}

		op := p.tok.kind
		if err := p.advance(); err != nil {
			return nil, err
		}

		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.tok.kind == tokMinus {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: tokMinus, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.tok

	switch tok.kind {
	case tokNumber:
		value, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &ParseError{Pos: tok.pos, Token: tok.text, Msg: "invalid numeric literal"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &numberNode{value: value}, nil

	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokLParen {
			return p.parseCall(tok)
		}
		p.recordField(tok.text)
		return &fieldNode{path: tok.text}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, &ParseError{Pos: p.tok.pos, Token: p.tok.text, Msg: "expected ')'"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}

	return nil, &ParseError{Pos: tok.pos, Token: tok.text, Msg: "expected number, field, or '('"}
}

// parseCall parses a function call; ident is the already-consumed name and
// the current token is '('.
func (p *parser) parseCall(ident token) (node, error) {
	arity, ok := funcArity[ident.text]
	if !ok {
		return nil, &ParseError{Pos: ident.pos, Token: ident.text, Msg: "unknown function"}
	}

	// consume '('
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []node
	if p.tok.kind != tokRParen {
		for {
			arg, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.tok.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if p.tok.kind != tokRParen {
		return nil, &ParseError{Pos: p.tok.pos, Token: p.tok.text, Msg: "expected ')' or ','"}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if arity == -1 {
		if len(args) < 2 {
			return nil, &ParseError{Pos: ident.pos, Token: ident.text, Msg: "expects at least 2 arguments"}
		}
	} else if len(args) != arity {
		return nil, &ParseError{Pos: ident.pos, Token: ident.text, Msg: "expects " + strconv.Itoa(arity) + " argument(s)"}
	}

	return &callNode{fn: ident.text, args: args}, nil
}

func (p *parser) recordField(path string) {
	if _, seen := p.fields[path]; seen {
		return
	}
	p.fields[path] = len(p.order)
	p.order = append(p.order, path)
}
