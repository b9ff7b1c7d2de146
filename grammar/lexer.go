package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var JopLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},

		// Floats before integers so 1.5 is not split
		{"Float", `[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?f?|[0-9]+f`, nil},
		{"Int", `0x[0-9a-fA-F]+L?|[0-9]+L?`, nil},

		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Longest operators first
		{"Operator", `>>>|<<|>>|\|\||&&|==|!=|<=|>=|[-+*/%&|^~!<>=?:]`, nil},

		{"Punctuation", `[{}[\](),;.]`, nil},

		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
