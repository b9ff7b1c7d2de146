package lsp

import (
	"slices"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"jitopt/grammar"
	"jitopt/internal/deopt"
	"jitopt/internal/frontend"
	"jitopt/internal/types"
)

// SemanticTokenTypes is the token legend advertised to clients
var SemanticTokenTypes = []string{
	"type",
	"function",
	"variable",
	"parameter",
	"property",
	"keyword",
	"number",
	"operator",
	"comment",
	"enumMember",
}

// SemanticTokenModifiers is the modifier legend; a token's modifiers are a bitmask over it
var SemanticTokenModifiers = []string{
	"declaration",
	"defaultLibrary",
}

const (
	modDeclaration = 1 << iota
	modDefaultLibrary
)

// SemanticToken is one token with 0-based position
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int // index into SemanticTokenTypes
	TokenModifiers int
}

func tokenType(name string) int {
	return slices.Index(SemanticTokenTypes, name)
}

// collectSemanticTokens classifies the tokens of source. It works on the token stream
// rather than the syntax tree so that files that do not parse still get highlighted.
func collectSemanticTokens(source string) []SemanticToken {
	l, err := grammar.JopLexer.LexString("", source)
	if err != nil {
		return nil
	}
	all, err := lexer.ConsumeAll(l)
	if err != nil && len(all) == 0 {
		return nil
	}
	symbols := grammar.JopLexer.Symbols()
	ws := symbols["Whitespace"]
	var toks []lexer.Token
	for _, t := range all {
		if t.Type != ws && !t.EOF() {
			toks = append(toks, t)
		}
	}

	classes := map[string]bool{}
	for i, t := range toks {
		if (t.Value == "class" || t.Value == "interface") && i+1 < len(toks) {
			classes[toks[i+1].Value] = true
		}
	}

	var tokens []SemanticToken
	for i, t := range toks {
		typ, mods := classify(toks, i, symbols, classes)
		if typ == "" {
			continue
		}
		tokens = append(tokens, SemanticToken{
			Line:           uint32(t.Pos.Line - 1),
			StartChar:      uint32(t.Pos.Column - 1),
			Length:         uint32(len(t.Value)),
			TokenType:      tokenType(typ),
			TokenModifiers: mods,
		})
	}
	return tokens
}

func classify(toks []lexer.Token, i int, symbols map[string]lexer.TokenType, classes map[string]bool) (string, int) {
	t := toks[i]
	switch t.Type {
	case symbols["Comment"]:
		return "comment", 0
	case symbols["Int"], symbols["Float"]:
		return "number", 0
	case symbols["Operator"]:
		return "operator", 0
	case symbols["Ident"]:
	default:
		return "", 0
	}

	prev, next := "", ""
	if i > 0 {
		prev = toks[i-1].Value
	}
	if i+1 < len(toks) {
		next = toks[i+1].Value
	}
	switch {
	case slices.Contains(grammar.Keywords, t.Value):
		return "keyword", 0
	case prev == "fn":
		return "function", modDeclaration
	case prev == "class" || prev == "interface":
		return "type", modDeclaration
	case prev == "let" || prev == "const":
		return "variable", modDeclaration
	case prev == ".":
		return "property", 0
	case next == "(":
		if slices.Contains(frontend.Builtins, t.Value) && prev != "call" {
			return "function", modDefaultLibrary
		}
		return "function", 0
	case next == ":" && (prev == "(" || prev == ","):
		return "parameter", modDeclaration
	case next == ":" && (prev == "{" || prev == ";" || prev == "final"):
		return "property", modDeclaration
	case classes[t.Value] || t.Value == "Object":
		return "type", 0
	}
	if _, ok := types.BuiltinTypes[t.Value]; ok {
		return "type", modDefaultLibrary
	}
	if isDeoptName(t.Value) && (prev == "else" || prev == "deopt" || prev == "/") {
		return "enumMember", 0
	}
	return "variable", 0
}

func isDeoptName(s string) bool {
	if _, err := deopt.ParseReason(s); err == nil {
		return true
	}
	_, err := deopt.ParseAction(s)
	return err == nil
}

// encodeSemanticTokens produces the relative wire encoding of tokens
func encodeSemanticTokens(tokens []SemanticToken) []uint32 {
	var data []uint32
	var prevLine, prevStart uint32
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		deltaStart := token.StartChar
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		}
		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))
		prevLine = token.Line
		prevStart = token.StartChar
	}
	return data
}

// lineCount is the number of lines of source, for whole-document edits
func lineCount(source string) uint32 {
	return uint32(strings.Count(source, "\n") + 1)
}
