// Package uniqueusage defines an analyzer for calls to interning factories whose
// result is dropped.
//
// A function whose doc comment carries the directive
//
//	//jitopt:unique
//
// may return an existing node equal to the one it was asked to build. A caller that
// ignores the result and keeps using nodes it built earlier works on a graph that no
// longer matches what it sees. The analyzer reports calls to such functions used as
// statements, assigned to the blank identifier, or started with go or defer. The
// directive is exported as a fact, so calls from other packages are checked as well.
package uniqueusage

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

const Directive = "//jitopt:unique"

var Analyzer = &analysis.Analyzer{
	Name:      "uniqueusage",
	Doc:       "report dropped results of interning node factories",
	URL:       "https://pkg.go.dev/jitopt/internal/verify/uniqueusage",
	Requires:  []*analysis.Analyzer{inspect.Analyzer},
	FactTypes: []analysis.Fact{new(unique)},
	Run:       run,
}

// unique marks a function carrying the directive
type unique struct{}

func (*unique) AFact()         {}
func (*unique) String() string { return "unique" }

func run(pass *analysis.Pass) (any, error) {
	exportFacts(pass)

	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	filter := []ast.Node{
		(*ast.ExprStmt)(nil),
		(*ast.AssignStmt)(nil),
		(*ast.GoStmt)(nil),
		(*ast.DeferStmt)(nil),
	}
	insp.Preorder(filter, func(n ast.Node) {
		switch s := n.(type) {
		case *ast.ExprStmt:
			if call, ok := ast.Unparen(s.X).(*ast.CallExpr); ok {
				check(pass, call)
			}
		case *ast.GoStmt:
			check(pass, s.Call)
		case *ast.DeferStmt:
			check(pass, s.Call)
		case *ast.AssignStmt:
			if len(s.Lhs) != len(s.Rhs) {
				return
			}
			for i, lhs := range s.Lhs {
				if id, ok := lhs.(*ast.Ident); !ok || id.Name != "_" {
					continue
				}
				if call, ok := ast.Unparen(s.Rhs[i]).(*ast.CallExpr); ok {
					check(pass, call)
				}
			}
		}
	})
	return nil, nil
}

func exportFacts(pass *analysis.Pass) {
	for _, f := range pass.Files {
		for _, d := range f.Decls {
			fd, ok := d.(*ast.FuncDecl)
			if !ok || !hasDirective(fd.Doc) {
				continue
			}
			if fn, ok := pass.TypesInfo.Defs[fd.Name].(*types.Func); ok {
				pass.ExportObjectFact(fn, new(unique))
			}
		}
	}
}

func hasDirective(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.TrimSpace(c.Text) == Directive {
			return true
		}
	}
	return false
}

func check(pass *analysis.Pass, call *ast.CallExpr) {
	fn, ok := typeutil.Callee(pass.TypesInfo, call).(*types.Func)
	if !ok {
		return
	}
	if !pass.ImportObjectFact(fn.Origin(), new(unique)) {
		return
	}
	pass.Reportf(call.Pos(), "result of %s is dropped but may be an existing node", fn.Name())
}
