package frontend

import (
	"fmt"
	"strconv"

	"jitopt/internal/eval"
	"jitopt/internal/types"
)

// maxCallDepth bounds recursion between functions of a unit during evaluation
const maxCallDepth = 200

// EvalConfig returns an evaluator configuration in which calls run the graphs the
// front end built for the callees
func (u *Unit) EvalConfig(maxSteps int) eval.Config {
	cfg := eval.Config{MaxSteps: maxSteps}
	depth := 0
	cfg.Invoke = func(name string, args []eval.Value) (eval.Outcome, error) {
		f := u.Function(name)
		if f == nil || f.Graph == nil {
			return eval.Outcome{}, fmt.Errorf("unknown function %s", name)
		}
		if depth >= maxCallDepth {
			return eval.Outcome{}, fmt.Errorf("call depth exceeds %d", maxCallDepth)
		}
		depth++
		defer func() { depth-- }()
		return eval.Run(f.Graph, args, cfg)
	}
	return cfg
}

// ParseArgs converts command line arguments to values of the parameter types.
// References can only be passed as null.
func (f *Function) ParseArgs(args []string) ([]eval.Value, error) {
	if len(args) != len(f.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", f.Signature(), len(f.Params), len(args))
	}
	vals := make([]eval.Value, len(args))
	for i, a := range args {
		p := f.Params[i]
		switch {
		case p.Type.Bool:
			b, err := strconv.ParseBool(a)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", p.Name, err)
			}
			vals[i] = eval.Bool(b)
		case p.Type.IsInteger():
			bits := p.Type.Prim.Bits()
			v, err := strconv.ParseInt(a, 0, bits)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", p.Name, err)
			}
			vals[i] = eval.Int(bits, v)
		case p.Type.Prim.IsFloat():
			bits := p.Type.Prim.Bits()
			v, err := strconv.ParseFloat(a, bits)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", p.Name, err)
			}
			vals[i] = eval.Float(bits, v)
		case p.Type.Prim == types.PrimRef && a == "null":
			vals[i] = eval.Null()
		default:
			return nil, fmt.Errorf("argument %s: cannot pass %q as %s", p.Name, a, p.Type)
		}
	}
	return vals, nil
}
