// Package grammar parses .jop files, the textual test language of the optimizer: a
// small typed imperative language with classes, arrays, guards and explicit
// deoptimization whose functions the front end turns into graphs.
package grammar

import "github.com/alecthomas/participle/v2/lexer"

type Program struct {
	Pos   lexer.Position
	Decls []*Decl `@@*`
}

type Decl struct {
	Class    *Class    `  @@`
	Const    *ConstArr `| @@`
	Function *Function `| @@`
}

type Class struct {
	Pos        lexer.Position
	Final      bool     `@"final"?`
	Interface  bool     `( "class" | @"interface" )`
	Name       string   `@Ident`
	Extends    string   `( "extends" @Ident )?`
	Implements []string `( "implements" @Ident ( "," @Ident )* )?`
	Fields     []*Field `"{" @@* "}"`
}

type Field struct {
	Pos   lexer.Position
	Final bool   `@"final"?`
	Name  string `@Ident ":"`
	Type  *Type  `@@ ";"`
}

// ConstArr is a global array whose elements are known at compile time
type ConstArr struct {
	Pos    lexer.Position
	Name   string     `"const" @Ident ":"`
	Type   *Type      `@@ "="`
	Values []*Literal `"[" ( @@ ( "," @@ )* )? "]" ";"`
}

type Type struct {
	Pos      lexer.Position
	Name     string   `@Ident`
	Brackets []string `( @"[" "]" )*`
}

// Dims is the number of array dimensions
func (t *Type) Dims() int { return len(t.Brackets) }

type Function struct {
	Pos    lexer.Position
	Name   string   `"fn" @Ident "("`
	Params []*Param `( @@ ( "," @@ )* )? ")"`
	Result *Type    `( ":" @@ )?`
	Body   *Block   `@@`
}

type Param struct {
	Pos  lexer.Position
	Name string `@Ident ":"`
	Type *Type  `@@`
}

type Block struct {
	Pos   lexer.Position
	Stmts []*Stmt `"{" @@* "}"`
}

type Stmt struct {
	Pos    lexer.Position
	Let    *LetStmt    `  @@`
	If     *IfStmt     `| @@`
	While  *WhileStmt  `| @@`
	Guard  *GuardStmt  `| @@`
	Deopt  *DeoptStmt  `| @@`
	Return *ReturnStmt `| @@`
	Anchor bool        `| @"anchor" ";"`
	Block  *Block      `| @@`
	Expr   *ExprStmt   `| @@`
}

type LetStmt struct {
	Pos   lexer.Position
	Name  string `"let" @Ident`
	Type  *Type  `( ":" @@ )?`
	Value *Expr  `"=" @@ ";"`
}

type IfStmt struct {
	Pos  lexer.Position
	Cond *Expr  `"if" "(" @@ ")"`
	Then *Block `@@`
	Else *Else  `( "else" @@ )?`
}

type Else struct {
	If    *IfStmt `  @@`
	Block *Block  `| @@`
}

type WhileStmt struct {
	Pos  lexer.Position
	Cond *Expr  `"while" "(" @@ ")"`
	Body *Block `@@`
}

// GuardStmt deoptimizes unless Cond holds
type GuardStmt struct {
	Pos    lexer.Position
	Cond   *Expr  `"guard" @@ "else"`
	Reason string `@Ident`
	Action string `( "/" @Ident )? ";"`
}

type DeoptStmt struct {
	Pos    lexer.Position
	Reason string `"deopt" @Ident`
	Action string `( "/" @Ident )? ";"`
}

type ReturnStmt struct {
	Pos   lexer.Position
	Value *Expr `"return" @@? ";"`
}

// ExprStmt is an expression evaluated for its effect, or an assignment when Value is
// set. Whether Target can be assigned is checked by the front end.
type ExprStmt struct {
	Pos    lexer.Position
	Target *Expr `@@`
	Value  *Expr `( "=" @@ )? ";"`
}

type Expr struct {
	Pos  lexer.Position
	Cond *OrExpr `@@`
	Then *Expr   `( "?" @@`
	Else *Expr   `  ":" @@ )?`
}

// Binary operator levels, loosest first

type OrExpr struct {
	Pos   lexer.Position
	Left  *AndExpr `@@`
	Right []*OrOp  `@@*`
}

type OrOp struct {
	Op    string   `@"||"`
	Right *AndExpr `@@`
}

type AndExpr struct {
	Pos   lexer.Position
	Left  *BitOrExpr `@@`
	Right []*AndOp   `@@*`
}

type AndOp struct {
	Op    string     `@"&&"`
	Right *BitOrExpr `@@`
}

type BitOrExpr struct {
	Pos   lexer.Position
	Left  *BitXorExpr `@@`
	Right []*BitOrOp  `@@*`
}

type BitOrOp struct {
	Op    string      `@"|"`
	Right *BitXorExpr `@@`
}

type BitXorExpr struct {
	Pos   lexer.Position
	Left  *BitAndExpr `@@`
	Right []*BitXorOp `@@*`
}

type BitXorOp struct {
	Op    string      `@"^"`
	Right *BitAndExpr `@@`
}

type BitAndExpr struct {
	Pos   lexer.Position
	Left  *EqExpr     `@@`
	Right []*BitAndOp `@@*`
}

type BitAndOp struct {
	Op    string  `@"&"`
	Right *EqExpr `@@`
}

type EqExpr struct {
	Pos   lexer.Position
	Left  *RelExpr `@@`
	Right []*EqOp  `@@*`
}

type EqOp struct {
	Op    string   `@( "==" | "!=" )`
	Right *RelExpr `@@`
}

type RelExpr struct {
	Pos   lexer.Position
	Left  *ShiftExpr `@@`
	Right []*RelOp   `@@*`
}

type RelOp struct {
	Op    string     `@( "<=" | ">=" | "<" | ">" )`
	Right *ShiftExpr `@@`
}

type ShiftExpr struct {
	Pos   lexer.Position
	Left  *AddExpr   `@@`
	Right []*ShiftOp `@@*`
}

type ShiftOp struct {
	Op    string   `@( "<<" | ">>>" | ">>" )`
	Right *AddExpr `@@`
}

type AddExpr struct {
	Pos   lexer.Position
	Left  *MulExpr `@@`
	Right []*AddOp `@@*`
}

type AddOp struct {
	Op    string   `@( "+" | "-" )`
	Right *MulExpr `@@`
}

type MulExpr struct {
	Pos   lexer.Position
	Left  *Unary   `@@`
	Right []*MulOp `@@*`
}

type MulOp struct {
	Op    string `@( "*" | "/" | "%" )`
	Right *Unary `@@`
}

type Unary struct {
	Pos     lexer.Position
	Op      string   `( @( "-" | "!" | "~" )`
	Operand *Unary   `  @@ )`
	Postfix *Postfix `| @@`
}

type Postfix struct {
	Pos     lexer.Position
	Primary *Primary     `@@`
	Ops     []*PostfixOp `@@*`
}

type PostfixOp struct {
	Pos        lexer.Position
	Field      string `  "." @Ident`
	Index      *Expr  `| "[" @@ "]"`
	Cast       *Type  `| "as" @@`
	InstanceOf *Type  `| "instanceof" @@`
}

type Primary struct {
	Pos    lexer.Position
	New    *NewExpr  `  @@`
	Call   *CallExpr `| @@`
	Lit    *Literal  `| @@`
	Ident  string    `| @Ident`
	Parens *Expr     `| "(" @@ ")"`
}

// NewExpr allocates an instance, or an array when Length is set. Brackets counts
// further array dimensions of the element type.
type NewExpr struct {
	Pos      lexer.Position
	Type     string   `"new" @Ident`
	Length   *Expr    `( "[" @@ "]" )?`
	Brackets []string `( @"[" "]" )*`
}

// CallExpr is a builtin, or a call of another function of the file when User is set
type CallExpr struct {
	Pos  lexer.Position
	User bool    `@"call"?`
	Name string  `@Ident "("`
	Args []*Expr `( @@ ( "," @@ )* )? ")"`
}

type Literal struct {
	Pos   lexer.Position
	Neg   bool    `@"-"?`
	Float *string `(  @Float`
	Int   *string ` | @Int`
	Bool  *string ` | @( "true" | "false" )`
	Null  bool    ` | @"null" )`
}
