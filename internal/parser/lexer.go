package parser

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"sysyc/token"
)

// sysyLexer classifies raw input into the SysY-subset's lexical
// categories using participle's regex-driven stateful lexer (the same
// mechanism the donor's grammar package uses); keyword-vs-identifier
// resolution and operator classification happen afterward in Lex,
// since this package hand-rolls its own recursive-descent parser
// rather than a participle.Build grammar.
var sysyLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Whitespace", `[ \t\r\n]+`, nil},
		{"LineComment", `//[^\n]*`, nil},
		{"BlockComment", `(?s)/\*.*?\*/`, nil},
		{"Str", `"(\\.|[^"\\])*"`, nil},
		{"Int", `[0-9]+`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Op", `&&|\|\||==|!=|<=|>=|[-+*/%<>=!,;(){}\[\]]`, nil},
	},
})

var ruleNames = invert(sysyLexer.Symbols())

func invert(symbols map[string]lexer.TokenType) map[lexer.TokenType]string {
	names := make(map[lexer.TokenType]string, len(symbols))
	for name, t := range symbols {
		names[t] = name
	}
	return names
}

// Token is one lexical token, already classified to its token.Type --
// keyword, identifier, literal, or operator/punctuation -- the way the
// parser's recursive descent switches on it.
type Token struct {
	Type token.Type
	Text string
	Pos  lexer.Position
}

var opTypes = map[string]token.Type{
	"+": token.PLUS, "-": token.MINUS, "*": token.ASTERISK, "/": token.SLASH, "%": token.PERCENT,
	"<": token.LT, ">": token.GT, "<=": token.LE, ">=": token.GE, "==": token.EQ, "!=": token.NEQ,
	"&&": token.AND, "||": token.OR, "=": token.ASSIGN, "!": token.BANG,
	",": token.COMMA, ";": token.SEMICOLON,
	"(": token.LPAREN, ")": token.RPAREN, "{": token.LBRACE, "}": token.RBRACE,
	"[": token.LBRACKET, "]": token.RBRACKET,
}

// Lex tokenizes source in full and returns the resulting token vector
// plus a trailing EOF sentinel, the way the original lexer builds one
// token vector up front for the parser to index into. Whitespace and
// comments are dropped; they never become parser-visible tokens.
func Lex(filename, source string) ([]Token, error) {
	lx, err := sysyLexer.Lex(filename, strings.NewReader(source))
	if err != nil {
		return nil, err
	}

	var out []Token
	var last lexer.Position
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		if tok.EOF() {
			last = tok.Pos
			break
		}
		last = tok.Pos

		switch ruleNames[tok.Type] {
		case "Whitespace", "LineComment", "BlockComment":
			continue
		case "Str":
			out = append(out, Token{Type: token.STRING, Text: tok.Value, Pos: tok.Pos})
		case "Int":
			out = append(out, Token{Type: token.INT, Text: tok.Value, Pos: tok.Pos})
		case "Ident":
			out = append(out, Token{Type: token.LookupIdent(tok.Value), Text: tok.Value, Pos: tok.Pos})
		case "Op":
			out = append(out, Token{Type: opTypes[tok.Value], Text: tok.Value, Pos: tok.Pos})
		}
	}
	out = append(out, Token{Type: token.EOF, Pos: last})
	return out, nil
}
