/*
PURPOSE:
  Console input source for the custom modes and the menu. Asks the same
  questions the interactive demo asks: continue?, use the cache?, then the
  id, name or query text.

REQUIREMENTS:
  Implementation-discovered:
  - Line editing and history matter when typing queries: use readline on
    a terminal, a plain scanner when stdin is piped.

ARCHITECTURE INTEGRATION:
  - Implements: engine.InputSource
  - Used by: custom.go, menu.go, run.go

ERROR HANDLING:
  - Ctrl-C and "n" at the continue prompt stop the loop (engine.ErrStop).
  - EOF stops the loop as well.
*/

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/daryltucker/cache-bench/internal/engine"
	"github.com/daryltucker/cache-bench/internal/model"
)

// lineReader is the part of *readline.Instance the console needs.
type lineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
}

// scanReader reads plain lines, printing prompts to out.
type scanReader struct {
	sc     *bufio.Scanner
	out    io.Writer
	prompt string
}

func newScanReader(in io.Reader, out io.Writer) *scanReader {
	return &scanReader{sc: bufio.NewScanner(in), out: out}
}

func (r *scanReader) SetPrompt(p string) { r.prompt = p }

func (r *scanReader) Readline() (string, error) {
	fmt.Fprint(r.out, r.prompt)
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

// Console prompts for custom requests.
type Console struct {
	in  lineReader
	out io.Writer
}

// NewReadlineConsole opens a terminal console; close it with the returned func.
func NewReadlineConsole() (*Console, func() error, error) {
	rl, err := readline.New("> ")
	if err != nil {
		return nil, nil, fmt.Errorf("opening terminal: %w", err)
	}
	return &Console{in: rl, out: rl.Stdout()}, rl.Close, nil
}

// NewConsole reads plain lines from in.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: newScanReader(in, out), out: out}
}

func (c *Console) ask(prompt string) (string, error) {
	c.in.SetPrompt(prompt)
	line, err := c.in.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", engine.ErrStop
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm treats anything but n/no as yes.
func (c *Console) confirm(prompt string) (bool, error) {
	answer, err := c.ask(prompt + " [Y/n]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "n", "no":
		return false, nil
	}
	return true, nil
}

// Choice reads one menu selection.
func (c *Console) Choice(prompt string) (string, error) {
	return c.ask(prompt)
}

// Next implements engine.InputSource.
func (c *Console) Next(_ context.Context, d *model.Descriptor) (engine.CustomRequest, error) {
	var req engine.CustomRequest

	var question string
	switch d.Kind {
	case model.KindCustomWrite:
		question = "Write new item?"
	case model.KindCustomPointRead:
		question = "Perform a point read?"
	default:
		question = "Perform a query?"
	}
	more, err := c.confirm("\n" + question)
	if err != nil {
		return req, err
	}
	if !more {
		return req, engine.ErrStop
	}

	if d.Kind != model.KindCustomWrite {
		cacheName := "item cache"
		if d.Kind == model.KindCustomQuery {
			cacheName = "query cache"
		}
		req.UseCache, err = c.confirm(fmt.Sprintf("Use the %s (n reads the backend)?", cacheName))
		if err != nil {
			return req, err
		}
	}

	switch d.Kind {
	case model.KindCustomWrite:
		if req.ID, err = c.ask("Enter item id: "); err != nil {
			return req, err
		}
		req.Name, err = c.ask("Enter name value: ")
	case model.KindCustomPointRead:
		req.ID, err = c.ask("Enter item id: ")
	default:
		req.Query, err = c.ask("Enter query: ")
	}
	return req, err
}

// PrintResponse renders one custom response.
func PrintResponse(w io.Writer, r engine.CustomResponse) {
	if r.Err != nil {
		fmt.Fprintf(w, "\n%v\n", r.Err)
		return
	}
	switch {
	case r.Kind == model.KindCustomWrite && r.Customer != nil:
		fmt.Fprintf(w, "\nWrote item with id: %s and name: %s\n", r.Customer.ID, r.Customer.Name)
	case r.Kind == model.KindCustomPointRead && r.Customer != nil:
		fmt.Fprintf(w, "\nRead item with id: %s and name: %s\n", r.Customer.ID, r.Customer.Name)
	case r.Kind == model.KindCustomQuery:
		fmt.Fprintf(w, "\nQuery returned %d items\n", r.Items)
	}
	fmt.Fprintf(w, "Request charge: %.2f RUs (%s, %d ms)\n", r.Cost, r.Consistency, r.Latency.Milliseconds())
}
