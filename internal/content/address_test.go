package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstAddress(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"simple", "Contact: anna@example.org today", "anna@example.org"},
		{"first of many", "a.b+c@mail.io then z@y.com", "a.b+c@mail.io"},
		{"country suffix", "reply to jo_e@acme.co.uk please", "jo_e@acme.co.uk"},
		{"case insensitive", "MIXED@Example.COM", "MIXED@Example.COM"},
		{"none", "no address here @ all", ""},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FirstAddress(tc.text))
		})
	}
}
