package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbtlineage/pkg/lineage"
)

func TestLineageRehashRoot(t *testing.T) {
	l := Lineage{Sequence: "mgt-l72f-k", Mutations: []string{"L72F", "L72F"}}
	require.NoError(t, l.Rehash(nil))

	assert.Equal(t, "MGT...L72F...K", l.NormalizedSequence)
	assert.Equal(t, []string{"L72F"}, l.Mutations)
	assert.Equal(t, 0, l.Generation)
	assert.Equal(t, lineage.Hash("", []string{"L72F"}, "MGT...L72F...K"), l.LineageHash)
}

func TestLineageRehashChild(t *testing.T) {
	parent := Lineage{Sequence: "MGTK"}
	require.NoError(t, parent.Rehash(nil))

	parentID := "p1"
	child := Lineage{Sequence: "MGTR", Mutations: []string{"K4R"}, ParentID: &parentID}
	require.NoError(t, child.Rehash(&parent))

	assert.Equal(t, 1, child.Generation)
	assert.Equal(t, lineage.Hash(parent.LineageHash, []string{"K4R"}, "MGTR"), child.LineageHash)
	assert.NotEqual(t, parent.LineageHash, child.LineageHash)
}

func TestLineageRehashRejectsInconsistentParent(t *testing.T) {
	parentID := "p1"
	l := Lineage{Sequence: "MGTK", ParentID: &parentID}
	assert.ErrorIs(t, l.Rehash(nil), ErrInvalidInput)

	empty := Lineage{Sequence: " "}
	assert.ErrorIs(t, empty.Rehash(nil), ErrInvalidInput)
}

func TestLineageSameContent(t *testing.T) {
	p1, p2 := "p1", "p2"
	base := Lineage{Sequence: "A", Mutations: []string{"x", "y"}, ParentID: &p1}

	assert.True(t, base.SameContent(CloneLineage(base)))
	assert.False(t, base.SameContent(Lineage{Sequence: "A", Mutations: []string{"y", "x"}, ParentID: &p1}))
	assert.False(t, base.SameContent(Lineage{Sequence: "A", Mutations: []string{"x", "y"}, ParentID: &p2}))
	assert.False(t, base.SameContent(Lineage{Sequence: "A", Mutations: []string{"x", "y"}}))
	assert.False(t, base.SameContent(Lineage{Sequence: "B", Mutations: []string{"x", "y"}, ParentID: &p1}))
}

func TestCloneLineageIsDeep(t *testing.T) {
	id := "p"
	original := Lineage{Mutations: []string{"a"}, ParentID: &id}
	cp := CloneLineage(original)
	cp.Mutations[0] = "b"
	*cp.ParentID = "q"
	assert.Equal(t, "a", original.Mutations[0])
	assert.Equal(t, "p", *original.ParentID)
}

func TestCandidateAccessors(t *testing.T) {
	d := Design{Base: Base{ID: "d1"}, Alias: "Clone_7", Lineage: Lineage{Sequence: "A"}}
	c := DesignCandidate(d)
	assert.Equal(t, EntityDesign, c.Kind)
	assert.Equal(t, "d1", c.ID())
	assert.Equal(t, "Clone_7", c.Alias())
	assert.Equal(t, "A", c.Lineage().Sequence)
	assert.Nil(t, c.Build)

	b := BuildCandidate(Build{Base: Base{ID: "b1"}, Alias: "B"})
	assert.Equal(t, "b1", b.ID())
	assert.Nil(t, b.Design)

	assert.True(t, Candidate{}.IsZero())
}
