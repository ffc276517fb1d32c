package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitKey(t *testing.T) {
	cases := []struct {
		key    string
		sender string
		udate  int64
	}{
		{"a@b.com-1700000000", "a@b.com", 1700000000},
		{"first-last@x.org-2", "first-last@x.org", 2},
		{"-3", "", 3},
		{"no-number", "no-number", 0},
		{"plain", "plain", 0},
	}

	for _, tc := range cases {
		sender, udate := splitKey(tc.key)
		assert.Equal(t, tc.sender, sender, tc.key)
		assert.Equal(t, tc.udate, udate, tc.key)
	}
}
