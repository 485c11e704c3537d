// Package eog acquires and caches access tokens for the Earth Observation
// Group data portal that hosts the VIIRS nighttime-light composites.
package eog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/term"
)

// ErrNoCredentials is returned when credentials are missing and no terminal
// is available to ask for them.
var ErrNoCredentials = errors.New("eog: no credentials")

// Credentials are the EOG account username and password.
type Credentials struct {
	Username string
	Password string
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// Prompter asks the user for missing values.
type Prompter interface {
	Username() (string, error)
	Password() (string, error)
}

// ResolveCredentials fills the gaps in c from p. A nil prompter means
// non-interactive: missing values yield ErrNoCredentials.
func ResolveCredentials(c Credentials, p Prompter) (Credentials, error) {
	if c.Complete() {
		return c, nil
	}
	if p == nil {
		return c, ErrNoCredentials
	}

	if c.Username == "" {
		u, err := p.Username()
		if err != nil {
			return c, eris.Wrap(err, "eog: read username")
		}
		c.Username = strings.TrimSpace(u)
	}
	if c.Password == "" {
		pw, err := p.Password()
		if err != nil {
			return c, eris.Wrap(err, "eog: read password")
		}
		c.Password = pw
	}

	if !c.Complete() {
		return c, ErrNoCredentials
	}
	return c, nil
}

// TerminalPrompter reads from a terminal on stdin, hiding the password.
type TerminalPrompter struct {
	in  *os.File
	out io.Writer
	r   *bufio.Reader
}

// StdinPrompter returns a prompter on stdin/stderr, or nil when stdin is
// not a terminal.
func StdinPrompter() Prompter {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return &TerminalPrompter{in: os.Stdin, out: os.Stderr, r: bufio.NewReader(os.Stdin)}
}

// Username prompts for the account email.
func (t *TerminalPrompter) Username() (string, error) {
	fmt.Fprint(t.out, "EOG username (email): ")
	line, err := t.r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Password prompts without echo.
func (t *TerminalPrompter) Password() (string, error) {
	fmt.Fprint(t.out, "EOG password: ")
	pw, err := term.ReadPassword(int(t.in.Fd()))
	fmt.Fprintln(t.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
