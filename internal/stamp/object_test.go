package stamp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/internal/cond"
	"jitopt/internal/types"
)

func hierarchy(t *testing.T) (*types.TypeRegistry, map[string]*types.Type) {
	reg := types.NewTypeRegistry()
	m := map[string]*types.Type{}
	var err error
	m["I"], err = reg.Declare("I", nil, nil, true, false)
	require.NoError(t, err)
	m["A"], err = reg.Declare("A", nil, nil, false, false)
	require.NoError(t, err)
	m["B"], err = reg.Declare("B", m["A"], []*types.Type{m["I"]}, false, false)
	require.NoError(t, err)
	m["C"], err = reg.Declare("C", m["A"], nil, false, true)
	require.NoError(t, err)
	m["D"], err = reg.Declare("D", nil, nil, false, true)
	require.NoError(t, err)
	return reg, m
}

func TestObjectMeetJoin(t *testing.T) {
	_, ty := hierarchy(t)
	a := ObjectOf(ty["A"], false, true)
	b := ObjectOf(ty["B"], false, true)
	c := ObjectOf(ty["C"], false, false)

	assert.Equal(t, a, b.MeetObject(a))
	assert.Equal(t, ObjectOf(ty["A"], false, false), b.MeetObject(c))
	assert.True(t, b.Meet(c).Equals(c.Meet(b)))

	// C is final so its stamps are exact
	assert.True(t, c.Exact)

	// B and C share no instance, so only null is left
	j := ObjectOf(ty["B"], false, false).JoinObject(c)
	assert.True(t, j.IsConstantNull())
	assert.True(t, b.JoinObject(c).IsEmpty())

	// a final class without I never implements it
	assert.True(t, ObjectOf(ty["D"], false, true).JoinObject(ObjectOf(ty["I"], false, false)).IsEmpty())
	assert.Equal(t, b, ObjectOf(ty["I"], false, false).JoinObject(b))

	assert.Equal(t, ObjectOf(ty["A"], false, false), Null().MeetObject(ObjectOf(ty["A"], false, true)))
	assert.True(t, Object().IsUnrestricted())
}

func TestFoldInstanceOf(t *testing.T) {
	_, ty := hierarchy(t)
	b := ObjectOf(ty["B"], false, false)

	assert.Equal(t, cond.Unknown, FoldInstanceOf(b, ty["A"], false))
	assert.Equal(t, cond.True, FoldInstanceOf(b, ty["A"], true))
	assert.Equal(t, cond.False, FoldInstanceOf(b, ty["C"], false))
	assert.Equal(t, cond.Unknown, FoldInstanceOf(b, ty["C"], true))
	assert.Equal(t, cond.True, FoldInstanceOf(Null(), ty["C"], true))
	assert.Equal(t, cond.False, FoldInstanceOf(Null(), ty["C"], false))

	assert.Equal(t, cond.True, FoldIsNull(Null()))
	assert.Equal(t, cond.False, FoldIsNull(ObjectOf(nil, false, true)))

	r := RefineInstanceOf(ObjectOf(ty["A"], false, false), ty["B"], false, true)
	assert.Equal(t, ObjectOf(ty["B"], false, true), r)
	r = RefineInstanceOf(ObjectOf(ty["A"], false, false), ty["B"], true, false)
	assert.True(t, r.NonNull)
}
