package cond

import (
	"fmt"
	"strings"
)

// Condition is a comparison predicate between two integer operands. Each condition is
// a set of the outcomes LT, EQ, GT under either signed or unsigned ordering, which
// makes implication and the lattice operations simple mask arithmetic.
type Condition uint8

const (
	EQ Condition = iota
	NE
	LT
	LE
	GT
	GE
	BT // unsigned <
	BE // unsigned <=
	AT // unsigned >
	AE // unsigned >=
)

const (
	maskLT = 1 << iota
	maskEQ
	maskGT
	maskAll = maskLT | maskEQ | maskGT
)

type order uint8

const (
	orderAny order = iota
	orderSigned
	orderUnsigned
)

var names = [...]string{"==", "!=", "<", "<=", ">", ">=", "|<|", "|<=|", "|>|", "|>=|"}

var masks = [...]uint8{
	EQ: maskEQ, NE: maskLT | maskGT,
	LT: maskLT, LE: maskLT | maskEQ, GT: maskGT, GE: maskGT | maskEQ,
	BT: maskLT, BE: maskLT | maskEQ, AT: maskGT, AE: maskGT | maskEQ,
}

// All lists every condition in declaration order
var All = []Condition{EQ, NE, LT, LE, GT, GE, BT, BE, AT, AE}

func (c Condition) String() string {
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("Condition(%d)", c)
}

// Name returns the mnemonic of c
func (c Condition) Name() string {
	return [...]string{"EQ", "NE", "LT", "LE", "GT", "GE", "BT", "BE", "AT", "AE"}[c]
}

// Parse accepts either the mnemonic or the operator spelling.
func Parse(s string) (Condition, error) {
	for _, c := range All {
		if s == c.String() || strings.EqualFold(s, c.Name()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", s)
}

func (c Condition) order() order {
	switch c {
	case EQ, NE:
		return orderAny
	case BT, BE, AT, AE:
		return orderUnsigned
	}
	return orderSigned
}

// IsUnsigned reports whether c compares bit patterns as unsigned numbers
func (c Condition) IsUnsigned() bool {
	return c.order() == orderUnsigned
}

func fromMask(m uint8, o order) (Condition, bool) {
	switch m {
	case maskEQ:
		return EQ, true
	case maskLT | maskGT:
		return NE, true
	}
	if o == orderAny {
		return 0, false
	}
	unsigned := o == orderUnsigned
	switch m {
	case maskLT:
		return pick(unsigned, BT, LT), true
	case maskLT | maskEQ:
		return pick(unsigned, BE, LE), true
	case maskGT:
		return pick(unsigned, AT, GT), true
	case maskGT | maskEQ:
		return pick(unsigned, AE, GE), true
	}
	return 0, false
}

func pick(unsigned bool, u, s Condition) Condition {
	if unsigned {
		return u
	}
	return s
}

// Negate returns the condition that holds exactly when c does not
func (c Condition) Negate() Condition {
	n, _ := fromMask(maskAll&^masks[c], c.order())
	return n
}

// Mirror returns the condition obtained by swapping the operands
func (c Condition) Mirror() Condition {
	m := masks[c]
	swapped := m & maskEQ
	if m&maskLT != 0 {
		swapped |= maskGT
	}
	if m&maskGT != 0 {
		swapped |= maskLT
	}
	r, _ := fromMask(swapped, c.order())
	return r
}

func compatible(a, b order) (order, bool) {
	switch {
	case a == orderAny:
		return b, true
	case b == orderAny || a == b:
		return a, true
	}
	return 0, false
}

// Implies reports whether c holding for an operand pair guarantees d holds as well
func (c Condition) Implies(d Condition) bool {
	if c == d {
		return true
	}
	if _, ok := compatible(c.order(), d.order()); !ok {
		return false
	}
	return masks[c]&^masks[d] == 0
}

// Join returns the condition that holds when both c and d hold. The second result is
// false when no single condition expresses the conjunction, including the case where
// the conjunction can never be true.
func (c Condition) Join(d Condition) (Condition, bool) {
	o, ok := compatible(c.order(), d.order())
	if !ok {
		return 0, false
	}
	m := masks[c] & masks[d]
	if m == 0 {
		return 0, false
	}
	return fromMask(m, o)
}

// Meet returns the condition that holds when c or d holds. The second result is false
// when the disjunction is not a single condition or is always true.
func (c Condition) Meet(d Condition) (Condition, bool) {
	o, ok := compatible(c.order(), d.order())
	if !ok {
		return 0, false
	}
	m := masks[c] | masks[d]
	if m == maskAll {
		return 0, false
	}
	return fromMask(m, o)
}

// TrueIsDisjoint reports whether c and d can never both hold for the same operands
func (c Condition) TrueIsDisjoint(d Condition) bool {
	if _, ok := compatible(c.order(), d.order()); !ok {
		return false
	}
	return masks[c]&masks[d] == 0
}

// Canonical describes how to express a condition through EQ, LT or BT.
type Canonical struct {
	Cond   Condition
	Mirror bool // swap operands
	Negate bool // negate the result
}

// Canonicalize maps c onto the canonical set
func (c Condition) Canonicalize() Canonical {
	switch c {
	case EQ:
		return Canonical{Cond: EQ}
	case NE:
		return Canonical{Cond: EQ, Negate: true}
	case LT:
		return Canonical{Cond: LT}
	case GE:
		return Canonical{Cond: LT, Negate: true}
	case GT:
		return Canonical{Cond: LT, Mirror: true}
	case LE:
		return Canonical{Cond: LT, Mirror: true, Negate: true}
	case BT:
		return Canonical{Cond: BT}
	case AE:
		return Canonical{Cond: BT, Negate: true}
	case AT:
		return Canonical{Cond: BT, Mirror: true}
	default: // BE
		return Canonical{Cond: BT, Mirror: true, Negate: true}
	}
}

// Eval evaluates c on two values of the given bit width. Values are taken as signed
// numbers sign-extended to 64 bits.
func (c Condition) Eval(bits int, x, y int64) bool {
	ux, uy := uint64(x), uint64(y)
	if bits < 64 {
		m := uint64(1)<<bits - 1
		ux, uy = ux&m, uy&m
	}
	switch c {
	case EQ:
		return x == y
	case NE:
		return x != y
	case LT:
		return x < y
	case LE:
		return x <= y
	case GT:
		return x > y
	case GE:
		return x >= y
	case BT:
		return ux < uy
	case BE:
		return ux <= uy
	case AT:
		return ux > uy
	case AE:
		return ux >= uy
	}
	panic(fmt.Sprintf("unknown condition %d", c))
}
