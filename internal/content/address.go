package content

import "regexp"

// addressPattern is deliberately loose: it finds address-looking text,
// it does not validate it.
var addressPattern = regexp.MustCompile(
	`(?i)[a-z0-9_\-\+\.]+@[a-z0-9\-]+\.([a-z]{2,4})(?:\.[a-z]{2})?`,
)

// FirstAddress returns the first email address found in text, or "".
func FirstAddress(text string) string {
	return addressPattern.FindString(text)
}
