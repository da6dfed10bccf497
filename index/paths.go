package index

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/poiesic/colloquy/core"
)

const maxSafeIDLen = 64

var (
	safeID   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	unsafeCh = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// CollectionName returns the collection and directory name for a session.
// Ids that are not filesystem-safe are sanitised and suffixed with a
// fingerprint of the original id so that distinct ids never collide.
func CollectionName(sessionID string) string {
	if safeID.MatchString(sessionID) && len(sessionID) <= maxSafeIDLen {
		return "session_" + sessionID
	}
	clean := unsafeCh.ReplaceAllString(sessionID, "_")
	if len(clean) > maxSafeIDLen-17 {
		clean = clean[:maxSafeIDLen-17]
	}
	return fmt.Sprintf("session_%s_%016x", clean, uint64(core.IDFromContent(sessionID)))
}

// SessionDir returns the directory holding a session's index.
func SessionDir(root, sessionID string) string {
	return filepath.Join(root, CollectionName(sessionID))
}
