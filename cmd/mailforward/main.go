// Command mailforward forwards recent notification mail from an IMAP
// folder through a transactional-email service.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var logged loggedError
		if !errors.As(err, &logged) {
			fmt.Fprintln(os.Stderr, "mailforward:", err)
		}
		os.Exit(1)
	}
}
