package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTimeEntryID(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := string(NewTimeEntryID())
		assert.True(t, strings.HasPrefix(id, "te_"))
		assert.Len(t, id, 3+26)
		assert.False(t, seen[id], "duplicate %s", id)
		assert.Greater(t, id, prev)
		seen[id] = true
		prev = id
	}
}
