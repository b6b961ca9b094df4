package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclarationApply(t *testing.T) {
	t.Run("later scalar wins", func(t *testing.T) {
		d := Declaration{}.Apply(&Patch{Fields: map[string]any{"child.firstname": "Ada"}})
		d = d.Apply(&Patch{Fields: map[string]any{"child.firstname": "Grace"}})

		v, ok := d.Get("child.firstname")
		require.True(t, ok)
		assert.Equal(t, "Grace", v)
	})

	t.Run("object values merge deeply", func(t *testing.T) {
		d := Declaration{}.Apply(&Patch{Fields: map[string]any{
			"informant": map[string]any{"firstname": "Ada", "relation": "mother"},
		}})
		d = d.Apply(&Patch{Fields: map[string]any{
			"informant": map[string]any{"relation": "other"},
		}})

		v, _ := d.Get("informant")
		assert.Equal(t, map[string]any{"firstname": "Ada", "relation": "other"}, v)
	})

	t.Run("nil patch leaves declaration unchanged", func(t *testing.T) {
		d := Declaration{Fields: map[string]any{"a": 1}}
		assert.Equal(t, d.Fields, d.Apply(nil).Fields)
	})

	t.Run("receiver is never mutated", func(t *testing.T) {
		d := Declaration{Fields: map[string]any{"a": "old"}}
		_ = d.Apply(&Patch{Fields: map[string]any{"a": "new"}})

		v, _ := d.Get("a")
		assert.Equal(t, "old", v)
	})

	t.Run("patch version tags the declaration", func(t *testing.T) {
		d := Declaration{}.Apply(&Patch{Version: "birth-v1", Fields: map[string]any{"a": 1}})
		assert.Equal(t, "birth-v1", d.Version)

		d = d.Apply(&Patch{Fields: map[string]any{"b": 2}})
		assert.Equal(t, "birth-v1", d.Version, "untagged patch keeps the version")
	})
}

func TestAttachments(t *testing.T) {
	t.Run("finds single and array file references", func(t *testing.T) {
		p := &Patch{Fields: map[string]any{
			"documents.proofOfBirth": map[string]any{"filename": "a1.png", "type": "image/png"},
			"documents.supporting": []any{
				map[string]any{"filename": "b2.pdf"},
				map[string]any{"filename": "c3.pdf"},
			},
			"child.firstname": "Ada",
		}}
		assert.Equal(t, []string{"a1.png", "b2.pdf", "c3.pdf"}, p.Attachments())
	})

	t.Run("finds references nested in objects", func(t *testing.T) {
		d := Declaration{Fields: map[string]any{
			"documents": map[string]any{
				"proof": map[string]any{"filename": "deep.png"},
			},
		}}
		assert.Equal(t, []string{"deep.png"}, d.Attachments())
	})

	t.Run("nil patch has no attachments", func(t *testing.T) {
		var p *Patch
		assert.Empty(t, p.Attachments())
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		d := Declaration{Fields: map[string]any{
			"one": map[string]any{"filename": "same.png"},
			"two": map[string]any{"filename": "same.png"},
		}}
		assert.Equal(t, []string{"same.png"}, d.Attachments())
	})
}

func TestPatchClone(t *testing.T) {
	original := &Patch{Fields: map[string]any{
		"nested": map[string]any{"k": "v"},
	}}
	clone := original.Clone()
	clone.Fields["nested"].(map[string]any)["k"] = "changed"

	assert.Equal(t, "v", original.Fields["nested"].(map[string]any)["k"])
}
