package ledger

import (
	"strconv"
	"strings"
)

// splitKey splits a "<sender>-<timestamp>" key. Senders may contain
// dashes, so the split is on the last one. A key without a numeric
// suffix is returned whole as the sender.
func splitKey(key string) (string, int64) {
	i := strings.LastIndex(key, "-")
	if i < 0 {
		return key, 0
	}
	ts, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return key, 0
	}
	return key[:i], ts
}
