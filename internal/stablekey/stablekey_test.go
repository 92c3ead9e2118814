package stablekey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSynthesize_Sanitized(t *testing.T) {
	assert.Equal(t, "110101199001011234", Synthesize(" 110101199001011234 ", "王芳"))
	assert.Equal(t, "WangFang-1", Synthesize("Wang Fang-1!", ""))
	assert.Equal(t, "row_2", Synthesize("row_2", "ignored"))
}

func TestSynthesize_HashFallback(t *testing.T) {
	k := Synthesize("王芳", "")
	assert.True(t, strings.HasPrefix(k, HashPrefix))
	assert.Len(t, k, len(HashPrefix)+24)
	assert.Equal(t, k, Synthesize("  王芳 ", "other"), "trimmed input hashes the same")
	assert.NotEqual(t, k, Synthesize("王建国", ""))
}

func TestSynthesize_FallbackSeed(t *testing.T) {
	assert.Equal(t, "row_7", Synthesize("null", "row_7"))
	assert.Equal(t, Hash("王芳"), Synthesize("", "王芳"))
}

func TestSynthesize_Random(t *testing.T) {
	a := Synthesize("", "undefined")
	b := Synthesize("", "")
	assert.True(t, strings.HasPrefix(a, RandomPrefix))
	assert.NotEqual(t, a, b)
	assert.Empty(t, unsafeChars.FindString(a))
}
