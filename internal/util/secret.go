package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// PromptSecret reads a secret from the terminal without echoing it.
func PromptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit into int
	if !term.IsTerminal(fd) {
		return "", errors.New("cannot prompt for a secret: stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "failed to read secret")
	}

	return strings.TrimSpace(string(secret)), nil
}
