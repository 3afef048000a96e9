package levenshtein_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/verstree/pkg/levenshtein"
)

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "a", 1},
		{"a", "", 1},
		{"x", "xy", 1},
		{"ab", "aaa", 2},
		{"kitten", "sitting", 3},
		{"Fön", "Föm", 1},
		{"aa", "aü", 1},
		{"print(1)", "print(2)", 1},
		{"abc", "def", 3},
	}

	var ctx levenshtein.Context

	for _, tt := range tests {
		t.Run(tt.a+"->"+tt.b, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, levenshtein.Distance(tt.a, tt.b))
		})

		assert.Equal(t, tt.want, ctx.Distance(tt.a, tt.b), "reused context %q %q", tt.a, tt.b)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	t.Parallel()

	words := []string{"kitten", "sitting", "ab", "aaa", "Fön", "x", strings.Repeat("ab", 40)}

	var ctx levenshtein.Context

	for _, a := range words {
		for _, b := range words {
			assert.Equal(t, ctx.Distance(a, b), ctx.Distance(b, a), "%q %q", a, b)
		}
	}
}

func TestDistance_LongOperands(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 100)

	assert.Equal(t, 1, levenshtein.Distance(long, long[:99]+"b"))
	assert.Equal(t, 100, levenshtein.Distance(long, strings.Repeat("b", 100)))
	assert.Equal(t, 36, levenshtein.Distance(long, strings.Repeat("a", 64)))
	assert.Equal(t, 1, levenshtein.Distance(strings.Repeat("a", 64), strings.Repeat("a", 63)+"b"))
}
