package reportformat

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vulnforge/reportformats/pkg/assetstore"
)

func TestCanonicalize_Layout(t *testing.T) {
	got := Canonicalize(
		Identity{UUID: "u-1", Extension: "pdf", ContentType: "application/pdf", Global: true},
		[]assetstore.File{{Name: "generate", Content: []byte("#!")}},
		[]Param{{Name: "Rows", Type: ParamInteger, Min: BoundAt(1), Max: BoundAt(9), Fallback: "5"}},
	)
	want := "u-1pdfapplication/pdf1" +
		"generate" + base64.StdEncoding.EncodeToString([]byte("#!")) +
		"Rowsinteger195" +
		"\n"
	assert.Equal(t, want, string(got))
}

func TestCanonicalize_FileOrderInvariant(t *testing.T) {
	id := Identity{UUID: "u-2", Extension: "txt", ContentType: "text/plain"}
	a := assetstore.File{Name: "a.xsl", Content: []byte("A")}
	b := assetstore.File{Name: "B.xsl", Content: []byte("B")}
	g := assetstore.File{Name: "generate", Content: []byte("G")}
	p1 := Param{Name: "x", Type: ParamString, Fallback: "1"}
	p2 := Param{Name: "y", Type: ParamSelection, Fallback: "o1", Options: []string{"o1", "o2"}}

	first := Canonicalize(id, []assetstore.File{a, b, g}, []Param{p1, p2})
	second := Canonicalize(id, []assetstore.File{g, a, b}, []Param{p1, p2})
	assert.Equal(t, first, second)
}

func TestCanonicalize_ParamsInGivenOrder(t *testing.T) {
	got := Canonicalize(Identity{UUID: "u", Extension: "e", ContentType: "c"}, nil, []Param{
		{Name: "zeta", Type: ParamString, Fallback: "x"},
		{Name: "alpha", Type: ParamString, Fallback: "x"},
	})
	assert.Equal(t, "uec0zetastringxalphastringx\n", string(got))
}

func TestCanonicalize_TypeNameAsWritten(t *testing.T) {
	got := Canonicalize(Identity{UUID: "u"}, nil, []Param{
		{Name: "n", Type: ParamInteger, TypeName: "Integer", Fallback: "1"},
	})
	assert.Equal(t, "u0nInteger1\n", string(got))
}

func TestCanonicalize_SortsFilesBytewise(t *testing.T) {
	got := Canonicalize(Identity{UUID: "u"},
		[]assetstore.File{{Name: "b"}, {Name: "B"}, {Name: "a"}}, nil)
	// Upper case sorts before lower case.
	assert.Equal(t, "u0Bab\n", string(got))
}

func TestCanonicalize_UnsetBoundsOmitted(t *testing.T) {
	got := Canonicalize(Identity{UUID: "u"}, nil,
		[]Param{{Name: "s", Type: ParamString, Max: BoundAt(3), Fallback: "d"}})
	assert.Equal(t, "u0sstring3d\n", string(got))
}

func TestCanonicalize_ValueNotSigned(t *testing.T) {
	id := Identity{UUID: "u"}
	p := Param{Name: "s", Type: ParamString, Fallback: "d", Value: "one"}
	q := p
	q.Value = "two"
	assert.Equal(t, Canonicalize(id, nil, []Param{p}), Canonicalize(id, nil, []Param{q}))
}
