//go:build property
// +build property

package textnorm

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNormalizeSpacingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("idempotent", prop.ForAll(
		func(s string) bool {
			once := NormalizeSpacing(s)
			return NormalizeSpacing(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("no double spaces or edge whitespace", prop.ForAll(
		func(s string) bool {
			n := NormalizeSpacing(s)
			return !strings.Contains(n, "  ") && n == strings.TrimSpace(n)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
