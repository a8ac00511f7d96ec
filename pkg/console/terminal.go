// Package console connects interpreter runs to a text terminal.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antibyte/espresso/pkg/logger"
	"github.com/antibyte/espresso/pkg/shared"
)

// ErrClosed is returned by operations on a closed console.
var ErrClosed = errors.New("console closed")

// TerminalConsole reads integers line by line from in and writes program
// output and prompts to out.
type TerminalConsole struct {
	in      *bufio.Reader
	out     io.Writer
	prompts *shared.PromptManager
	closed  bool
}

// NewTerminalConsole creates a console over in and out.
func NewTerminalConsole(in io.Reader, out io.Writer, prompts *shared.PromptManager) *TerminalConsole {
	return &TerminalConsole{
		in:      bufio.NewReader(in),
		out:     out,
		prompts: prompts,
	}
}

// Emit prints text on its own line.
func (c *TerminalConsole) Emit(text string) error {
	if c.closed {
		return ErrClosed
	}
	_, err := fmt.Fprintln(c.out, text)
	return err
}

// ReadInteger prompts for name and keeps asking until a line holding a valid
// integer arrives. It fails only when the input ends or breaks.
func (c *TerminalConsole) ReadInteger(name rune) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}

	prompt, err := c.prompts.InputPrompt(name)
	if err != nil {
		return 0, err
	}
	for {
		if _, err := io.WriteString(c.out, prompt); err != nil {
			return 0, err
		}

		line, readErr := c.in.ReadString('\n')
		text := strings.TrimSpace(line)
		if text != "" {
			if v, err := strconv.Atoi(text); err == nil {
				return v, nil
			}
			logger.Debug(logger.AreaConsole, "rejected input %q for variable %c", text, name)
		}
		if readErr != nil {
			if readErr == io.EOF {
				return 0, fmt.Errorf("input ended while reading variable %c: %w", name, io.ErrUnexpectedEOF)
			}
			return 0, fmt.Errorf("reading variable %c: %w", name, readErr)
		}

		if prompt, err = c.prompts.RetryPrompt(name, text); err != nil {
			return 0, err
		}
	}
}

// Close marks the console closed. The underlying streams belong to the caller.
func (c *TerminalConsole) Close() error {
	c.closed = true
	return nil
}
