package near

import (
	"crypto/sha256"
	"encoding/hex"
)

// LockupAccountID 由所有者账户推导锁仓账户: hex(sha256(owner)[:20]) + "." + suffix
func LockupAccountID(ownerID, suffix string) string {
	sum := sha256.Sum256([]byte(ownerID))
	return hex.EncodeToString(sum[:20]) + "." + suffix
}
