package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/antibyte/espresso/pkg/console"
	"github.com/antibyte/espresso/pkg/logger"
	"github.com/antibyte/espresso/pkg/shared"
)

// WebSocketConsole is the espresso.Console of a remote run. Output and
// prompts become messages; integers arrive through the client's input queue.
type WebSocketConsole struct {
	ctx     context.Context
	client  *Client
	prompts *shared.PromptManager
	runID   string
	outputs int
	closed  bool
}

func newWebSocketConsole(ctx context.Context, client *Client, prompts *shared.PromptManager, runID string) *WebSocketConsole {
	return &WebSocketConsole{
		ctx:     ctx,
		client:  client,
		prompts: prompts,
		runID:   runID,
	}
}

// Emit sends text as an output message.
func (c *WebSocketConsole) Emit(text string) error {
	if c.closed {
		return console.ErrClosed
	}
	c.outputs++
	return c.client.Send(shared.Message{Type: shared.MessageTypeOutput, Content: text, RunID: c.runID})
}

// ReadInteger sends a prompt and waits for an input message holding an
// integer. Anything else is answered with the retry prompt. It returns the
// context error once the run is cancelled.
func (c *WebSocketConsole) ReadInteger(name rune) (int, error) {
	if c.closed {
		return 0, console.ErrClosed
	}

	prompt, err := c.prompts.InputPrompt(name)
	if err != nil {
		return 0, err
	}
	for {
		err := c.client.Send(shared.Message{
			Type:     shared.MessageTypePrompt,
			Content:  prompt,
			Variable: string(name),
			RunID:    c.runID,
		})
		if err != nil {
			return 0, err
		}

		select {
		case <-c.ctx.Done():
			return 0, c.ctx.Err()
		case text := <-c.client.inputs:
			text = strings.TrimSpace(text)
			if v, err := strconv.Atoi(text); err == nil {
				return v, nil
			}
			logger.Debug(logger.AreaConsole, "run %s: rejected input %q for variable %c", c.runID, text, name)
			if prompt, err = c.prompts.RetryPrompt(name, text); err != nil {
				return 0, err
			}
		}
	}
}

// Close ends the run's use of the console. The connection stays open.
func (c *WebSocketConsole) Close() error {
	c.closed = true
	return nil
}

// Outputs returns the number of values emitted.
func (c *WebSocketConsole) Outputs() int {
	return c.outputs
}
