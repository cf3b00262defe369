package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMutations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "", want: []string{}},
		{name: "blank", raw: "  \t", want: []string{}},
		{name: "single", raw: "L72F", want: []string{"L72F"}},
		{name: "comma", raw: "L72F,R80K", want: []string{"L72F", "R80K"}},
		{name: "mixed delimiters", raw: " L72F ;, R80K  G12D;", want: []string{"L72F", "R80K", "G12D"}},
		{name: "order preserved", raw: "R80K L72F", want: []string{"R80K", "L72F"}},
		{name: "verbatim tokens", raw: "del(3-5) ins:AG", want: []string{"del(3-5)", "ins:AG"}},
		{name: "duplicates kept", raw: "L72F,L72F", want: []string{"L72F", "L72F"}},
		{name: "unicode spaces", raw: "L72F\u00a0R80K\u3000G12D", want: []string{"L72F", "R80K", "G12D"}},
		{name: "blank unicode", raw: "\u00a0\u2028", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMutations(tt.raw)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDedupeMutationsKeepsFirstOccurrence(t *testing.T) {
	got := DedupeMutations([]string{"R80K", "L72F", "R80K", "G12D", "L72F"})
	assert.Equal(t, []string{"R80K", "L72F", "G12D"}, got)
	assert.Empty(t, DedupeMutations(nil))
}

func TestMutationSetComparisons(t *testing.T) {
	a := NewMutationSet([]string{"L72F", "R80K"})
	b := NewMutationSet([]string{"R80K", "L72F"})
	c := NewMutationSet([]string{"L72F"})
	d := NewMutationSet([]string{"G12D"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, a.Intersects(c))
	assert.True(t, c.Intersects(a))
	assert.False(t, a.Intersects(d))
	assert.False(t, NewMutationSet(nil).Intersects(a))
}
