package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSequence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "double hyphen", in: "A--B", want: "A...B"},
		{name: "whitespace run", in: "A   B", want: "A...B"},
		{name: "lowercase hyphen", in: "a-b", want: "A...B"},
		{name: "mixed gap", in: "a -\t-b", want: "A...B"},
		{name: "already normalized", in: "MGT...L72F...K", want: "MGT...L72F...K"},
		{name: "hyphenated variant", in: "MGT-L72F-K", want: "MGT...L72F...K"},
		{name: "separator next to gap", in: "A...-B", want: "A...B"},
		{name: "no gaps", in: "mgtk", want: "MGTK"},
		{name: "leading gap", in: " ACGT", want: "...ACGT"},
		{name: "non-breaking space", in: "A\u00a0B", want: "A...B"},
		{name: "vertical tab", in: "a\vb", want: "A...B"},
		{name: "ideographic space and hyphen", in: "A\u3000-\u2003B", want: "A...B"},
		{name: "line separator", in: "A\u2028B", want: "A...B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSequence(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeSequenceIdempotent(t *testing.T) {
	inputs := []string{
		"A--B", "A   B", "a-b", "A.......B", "A.. -B", "x y-z", "....", "-", "ACGT  -- acgt",
		"A............B", "a\n\nb", "A\u00a0B", "A\u00a0...\u00a0B", "a\v-\u0085b",
	}
	for _, in := range inputs {
		once, err := NormalizeSequence(in)
		require.NoError(t, err, in)
		twice, err := NormalizeSequence(once)
		require.NoError(t, err, in)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestNormalizeSequenceRejectsEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\t\n", "\u00a0\v"} {
		_, err := NormalizeSequence(in)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", in)
	}
	assert.False(t, HasSequence(" "))
	assert.True(t, HasSequence("A"))
}
