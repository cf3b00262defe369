package lineage

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestHashKnownDigest(t *testing.T) {
	got := Hash("", []string{"L72F"}, "MGT...L72F...K")
	assert.Equal(t, "62e4fe82ce905186e89f820afa8e208d825651760b0bb6a3c7196de4e0aa1e5b", got)
	assert.Equal(t, "2cd1cd794f75c960dde17936fd6cec7dffa0a5ed6c1d477b4c535ac20249911d", Hash("", nil, "A...B"))
	assert.Len(t, got, HashLength)
	assert.Regexp(t, hexDigest, got)
}

func TestHashDeterministicAcrossEquivalentSequences(t *testing.T) {
	parent := Hash("", nil, "ROOT")
	for _, pair := range [][2]string{{"A--B", "a b"}, {"MGT-L72F-K", "mgt   l72f k"}} {
		h1, err := Compute(parent, []string{"L72F", "R80K"}, pair[0])
		require.NoError(t, err)
		h2, err := Compute(parent, []string{"L72F", "R80K"}, pair[1])
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	}
}

func TestHashSensitivity(t *testing.T) {
	base := Hash("p", []string{"L72F", "R80K"}, "MGTK")
	variants := map[string]string{
		"parent":         Hash("q", []string{"L72F", "R80K"}, "MGTK"),
		"empty parent":   Hash("", []string{"L72F", "R80K"}, "MGTK"),
		"mutation added": Hash("p", []string{"L72F", "R80K", "G12D"}, "MGTK"),
		"mutation order": Hash("p", []string{"R80K", "L72F"}, "MGTK"),
		"sequence":       Hash("p", []string{"L72F", "R80K"}, "MGTR"),
	}
	seen := map[string]string{base: "base"}
	for name, h := range variants {
		assert.NotEqual(t, base, h, name)
		prev, dup := seen[h]
		assert.False(t, dup, "%s collides with %s", name, prev)
		seen[h] = name
	}
}

func TestComputeRejectsEmptySequence(t *testing.T) {
	_, err := Compute("", nil, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestVerify(t *testing.T) {
	h := Hash("", []string{"L72F"}, "MGT")
	assert.True(t, Verify(h, "", []string{"L72F"}, "MGT"))
	assert.False(t, Verify(h, "", []string{"L72F"}, "MGK"))
}
