package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ErrNoInput is returned when an answer cannot be obtained, for example
// when stdin is closed or the prompter is unattended.
var ErrNoInput = errors.New("no input available")

// Prompter yields answers to interactive questions.
type Prompter interface {
	// Confirm asks a yes/no question. def is returned on an empty answer.
	Confirm(question string, def bool) (bool, error)
	// Choose presents numbered options and returns the chosen index.
	Choose(question string, options []string) (int, error)
	// Input asks for free text. Sensitive input is not echoed.
	Input(question string, sensitive bool) (string, error)
	// Interactive reports whether a human is answering.
	Interactive() bool
}

// Fixed answers every question with the same decision.
type Fixed struct {
	// Answer is returned by Confirm.
	Answer bool
}

// NewFixed returns an unattended prompter answering yes when assumeYes is set.
func NewFixed(assumeYes bool) *Fixed {
	return &Fixed{Answer: assumeYes}
}

// Confirm implements Prompter.
func (f *Fixed) Confirm(string, bool) (bool, error) {
	return f.Answer, nil
}

// Choose implements Prompter. The first option is always chosen; callers
// put the safe choice first.
func (f *Fixed) Choose(string, []string) (int, error) {
	return 0, nil
}

// Input implements Prompter. Unattended runs cannot type.
func (f *Fixed) Input(string, bool) (string, error) {
	return "", ErrNoInput
}

// Interactive implements Prompter.
func (f *Fixed) Interactive() bool {
	return false
}

// Terminal asks questions on a terminal.
type Terminal struct {
	mu       sync.Mutex
	in       *bufio.Reader
	fd       int
	out      io.Writer
	question *color.Color
	warning  *color.Color
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithIO replaces stdin and stdout, for tests.
func WithIO(in io.Reader, out io.Writer) TerminalOption {
	return func(t *Terminal) {
		t.in = bufio.NewReader(in)
		t.out = out
		t.fd = -1
	}
}

// NewTerminal returns a prompter reading os.Stdin and writing os.Stdout.
func NewTerminal(opts ...TerminalOption) *Terminal {
	t := &Terminal{
		in:       bufio.NewReader(os.Stdin),
		fd:       int(os.Stdin.Fd()), //nolint:gosec // file descriptors fit in int
		out:      os.Stdout,
		question: color.New(color.FgCyan, color.Bold),
		warning:  color.New(color.FgYellow),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Interactive implements Prompter.
func (t *Terminal) Interactive() bool {
	return true
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(question string, def bool) (bool, error) {
	hint := "(y/N)"
	if def {
		hint = "(Y/n)"
	}
	answer, err := t.ask(fmt.Sprintf("%s %s ", question, hint), false)
	if err != nil {
		return def, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Choose implements Prompter.
func (t *Terminal) Choose(question string, options []string) (int, error) {
	t.mu.Lock()
	t.question.Fprintln(t.out, question) //nolint:errcheck // terminal output
	for i, opt := range options {
		fmt.Fprintf(t.out, "%d) %s\n", i+1, opt)
	}
	t.mu.Unlock()

	for {
		answer, err := t.ask("> ", false)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(answer))
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		t.warning.Fprintf(t.out, "Please enter a number between 1 and %d\n", len(options)) //nolint:errcheck // terminal output
	}
}

// Input implements Prompter.
func (t *Terminal) Input(question string, sensitive bool) (string, error) {
	answer, err := t.ask(question+"\n> ", sensitive)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(answer, "\r\n"), nil
}

func (t *Terminal) ask(text string, sensitive bool) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.question.Fprint(t.out, text) //nolint:errcheck // terminal output
	if sensitive && t.fd >= 0 && term.IsTerminal(t.fd) {
		secret, err := term.ReadPassword(t.fd)
		fmt.Fprintln(t.out)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoInput, err)
		}
		return string(secret), nil
	}

	line, err := t.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("%w: %v", ErrNoInput, err)
	}
	return line, nil
}
