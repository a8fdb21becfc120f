// Package iocli handles interactive terminal input for the client commands.
package iocli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive indicates that input is required but stdin is not a terminal
var ErrNotInteractive = errors.New("interactive input required but stdin is not a terminal")

// Prompter asks the user for input.
type Prompter interface {
	ReadPassword(prompt string) (string, error)
	Confirm(prompt string) (bool, error)
}

// Terminal reads from in and writes prompts to out. Passwords are read without echo
// when in is a terminal.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

// NewTerminal returns a prompter over the given streams.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:     in,
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// NewStdio returns a prompter over stdin and stderr.
func NewStdio() *Terminal {
	return NewTerminal(os.Stdin, os.Stderr)
}

// Interactive reports whether input comes from a terminal.
func (t *Terminal) Interactive() bool {
	fd, ok := t.fd()
	return ok && term.IsTerminal(fd)
}

// ReadPassword prompts for a secret. Piped input is read as a plain line.
func (t *Terminal) ReadPassword(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)

	if fd, ok := t.fd(); ok && term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(t.out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	return t.readLine()
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (t *Terminal) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(t.out, "%s [y/N]: ", prompt)
	answer, err := t.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) fd() (int, bool) {
	f, ok := t.in.(*os.File)
	if !ok {
		return 0, false
	}
	return int(f.Fd()), true
}
