package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	faults "github.com/labelport/annotation_tool/pkg/errors"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)

	fatalColor       = lipgloss.Color("1")
	recoverableColor = lipgloss.Color("3")
)

// Console presents notifications on a terminal. On a TTY it shows a dialog
// with a Close button; otherwise it prints the message and waits for Enter.
type Console struct {
	in          io.Reader
	out         io.Writer
	interactive bool

	// One reader owns in for the life of the Console. It sends a value per
	// line and closes lines at end of input.
	readerOnce sync.Once
	lines      chan struct{}
	readErr    error
}

// NewConsole creates a presenter on stdin/stderr
func NewConsole() *Console {
	return &Console{
		in:          os.Stdin,
		out:         os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// NewLineConsole creates a non-interactive presenter on the given streams
func NewLineConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

// Render returns the boxed notification text
func Render(req Request) string {
	color := recoverableColor
	if req.Severity == faults.SeverityFatal {
		color = fatalColor
	}
	body := titleStyle.Foreground(color).Render(req.title()) + "\n\n" + req.Message
	return boxStyle.BorderForeground(color).Render(body)
}

// Present shows req and blocks until the user closes it
func (c *Console) Present(ctx context.Context, req Request) error {
	var err error
	if c.interactive {
		err = c.dialog(ctx, req)
	} else {
		err = c.prompt(ctx, req)
	}
	if err != nil {
		return err
	}

	req.dismiss()
	return nil
}

func (c *Console) dialog(ctx context.Context, req Request) error {
	note := huh.NewNote().
		Title(req.title()).
		Description(req.Message).
		Next(true).
		NextLabel("Close")

	err := huh.NewForm(huh.NewGroup(note)).
		WithOutput(c.out).
		RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		// Escape closes the dialog like the button does
		return nil
	}
	return err
}

func (c *Console) prompt(ctx context.Context, req Request) error {
	c.startReader()

	fmt.Fprintln(c.out, Render(req))
	fmt.Fprint(c.out, "Press Enter to close ")

	select {
	case _, ok := <-c.lines:
		fmt.Fprintln(c.out)
		if !ok {
			return c.readErr
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startReader starts the line reader. A prompt abandoned on cancellation
// leaves its pending line to the next prompt.
func (c *Console) startReader() {
	c.readerOnce.Do(func() {
		c.lines = make(chan struct{})
		go func() {
			r := bufio.NewReader(c.in)
			for {
				if _, err := r.ReadString('\n'); err != nil {
					if !errors.Is(err, io.EOF) {
						c.readErr = err
					}
					close(c.lines)
					return
				}
				c.lines <- struct{}{}
			}
		}()
	})
}

// Headless prints notifications without waiting for the user
type Headless struct {
	Out io.Writer
}

// Present prints req and dismisses it
func (h Headless) Present(ctx context.Context, req Request) error {
	out := h.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintln(out, Render(req))
	req.dismiss()
	return nil
}
