package index

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "session_abc-123_X", CollectionName("abc-123_X"))

	unsafe := CollectionName("../etc/passwd")
	assert.True(t, strings.HasPrefix(unsafe, "session_"))
	assert.NotContains(t, unsafe, "/")
	assert.NotContains(t, unsafe, ".")

	assert.NotEqual(t, CollectionName("a/b"), CollectionName("a:b"), "sanitised ids must stay distinct")
	assert.Equal(t, CollectionName("a/b"), CollectionName("a/b"))

	long := CollectionName(strings.Repeat("x", 200))
	assert.LessOrEqual(t, len(long), len("session_")+maxSafeIDLen)
}

func TestSessionDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "session_42"), SessionDir("/data", "42"))
	assert.Equal(t, "/data", filepath.Dir(SessionDir("/data", "../../x")))
}
