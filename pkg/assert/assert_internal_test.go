//go:build !release

package assert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThat(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { That(true, "never") })
	assert.PanicsWithValue(t, "group sp_sort_0001 has 0 members", func() {
		That(false, "group %s has %d members", "sp_sort_0001", 0)
	})
}
