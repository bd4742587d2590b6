package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

func TestItemFieldsRoundTrip(t *testing.T) {
	fields := []Field{
		{Name: "path", Value: sexp.String("/etc")},
		{Name: "filename", Attrs: []Attr{NewAttribute("datatype", sexp.String("string"))}, Value: sexp.String("passwd")},
		{Name: "size", Value: sexp.Int(1024)},
		{Name: "behaviors", Attrs: []Attr{NewAttribute("max_depth", sexp.String("1"))}},
	}

	it, err := NewItem("filemd5_item", fields...)
	require.NoError(t, err)
	assert.Equal(t, "filemd5_item", it.Name())
	assert.Equal(t, oval.FlagComplete, it.Flag())

	got := it.Fields()
	require.Len(t, got, len(fields))
	for i := range fields {
		assert.Equal(t, fields[i].Name, got[i].Name)
		assert.True(t, sexp.Equal(fields[i].Value, got[i].Value), "field %s", fields[i].Name)
		require.Len(t, got[i].Attrs, len(fields[i].Attrs))
		for j := range fields[i].Attrs {
			assert.Equal(t, fields[i].Attrs[j].Name, got[i].Attrs[j].Name)
			assert.True(t, sexp.Equal(fields[i].Attrs[j].Value, got[i].Attrs[j].Value))
		}
	}

	// 经过线上编码后结果不变
	b, err := sexp.Marshal(it.Value())
	require.NoError(t, err)
	node, err := sexp.Unmarshal(b)
	require.NoError(t, err)
	back, err := ItemFromValue(node)
	require.NoError(t, err)
	assert.True(t, sexp.Equal(it.Value(), back.Value()))
	assert.Equal(t, "passwd", back.FieldValue("filename").Text())
}

func TestNewItemRejectsEmptyField(t *testing.T) {
	_, err := NewItem("x_item", Field{Name: "value"})
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = NewItem("x_item", Field{Value: sexp.String("v")})
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestSoftErrorFieldMarksItemIncomplete(t *testing.T) {
	it, err := NewItem("filemd5_item", Field{Name: "path", Attrs: ErrorAttrs("permission denied")})
	require.NoError(t, err)
	assert.Equal(t, oval.FlagIncomplete, it.Flag())

	f := it.Fields()[0]
	status, ok := f.Attr(AttrStatus).Int64()
	require.True(t, ok)
	assert.Equal(t, oval.FlagError, oval.Flag(status))
	assert.Equal(t, "permission denied", f.Attr(AttrMessage).Text())
	assert.Nil(t, f.Value)
}

func TestAttachShared(t *testing.T) {
	ref := NewSharedEntity(AttrVarRef, sexp.String("oval:x:var:1"))

	a, err := NewItem("variable_item", Field{Name: "value", Value: sexp.String("a")})
	require.NoError(t, err)
	b, err := NewItem("variable_item", Field{Name: "value", Value: sexp.String("b")})
	require.NoError(t, err)

	require.NoError(t, a.AttachShared(ref))
	require.NoError(t, b.AttachShared(ref))
	assert.Same(t, a.Entity(AttrVarRef), b.Entity(AttrVarRef))
	assert.Equal(t, "oval:x:var:1", a.FieldValue(AttrVarRef).Text())

	err = a.AttachShared(sexp.List(sexp.String("x")))
	assert.ErrorIs(t, err, ErrInvalid)
}
