package cache

import "fmt"

// Key layout:
// - roomKey(sessionID):   online members (ZSet<userId>, score = expireAt unix seconds)
// - namesKey(sessionID):  userId -> username (Hash)
// - cursorKey(...):       per-user cursor/selection blob with TTL
//
// Hash tags keep a session's keys in one cluster slot.
const (
	keyRoomFmt   = "presence:session:{%s}"
	keyNamesFmt  = "presence:session:names:{%s}"
	keyCursorFmt = "presence:cursor:{%s}:%s"
)

func roomKey(sessionID string) string  { return fmt.Sprintf(keyRoomFmt, sessionID) }
func namesKey(sessionID string) string { return fmt.Sprintf(keyNamesFmt, sessionID) }
func cursorKey(sessionID, userID string) string {
	return fmt.Sprintf(keyCursorFmt, sessionID, userID)
}
