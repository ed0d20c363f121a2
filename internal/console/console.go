package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/muesli/termenv"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/entity"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	errQuit           = errors.New("quit")
)

const help = "commands: 0-8 to play a cell, jump N to go to step N, new, help, quit"

// Console plays one local game on a text terminal.
type Console struct {
	logger *slog.Logger
	out    *termenv.Output
	state  entity.GameState
}

func New(logger *slog.Logger, out *termenv.Output) *Console {
	return &Console{
		logger: logger.With("component", "console"),
		out:    out,
		state:  entity.NewGameState(),
	}
}

func (that *Console) State() entity.GameState {
	return that.state
}

// Run - reads commands line by line until quit, EOF or ctx cancellation.
// Cancellation is noticed while waiting for input, not only between lines.
func (that *Console) Run(ctx context.Context, in io.Reader) error {
	done := make(chan struct{})
	defer close(done)

	lines, readErr := readLines(in, done)

	that.render()

	for {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(that.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(that.out)
			return nil
		case next, ok := <-lines:
			if !ok {
				return <-readErr
			}

			line = next
		}

		err := that.Execute(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintln(that.out, that.out.String(err.Error()).Foreground(that.out.Color("1")))
		default:
			that.render()
		}
	}
}

// readLines - scans in on its own goroutine until EOF or done. A read that is
// already blocked outlives Run until the reader returns, which for stdin is process exit.
func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}

		if err := scanner.Err(); err != nil {
			readErr <- fmt.Errorf("failed to read input: %w", err)
			return
		}

		readErr <- nil
	}()

	return lines, readErr
}

// Execute - applies one command line to the game. Ignored moves come back as errors
// so the player sees why nothing happened.
func (that *Console) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "quit", "exit", "q":
		return errQuit
	case "help", "h", "?":
		fmt.Fprintln(that.out, help)
		return nil
	case "new":
		that.state = entity.NewGameState()
		return nil
	case "jump", "j":
		if len(fields) != 2 {
			return fmt.Errorf("%w: usage: jump N", ErrUnknownCommand)
		}

		step, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("%w: step %q is not a number", ErrUnknownCommand, fields[1])
		}

		if err = entity.CheckRewind(that.state, step); err != nil {
			return err
		}

		that.state = entity.Rewind(that.state, step)
		that.logger.Debug("rewound", "step", step)

		return nil
	}

	cell, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("%w: %q (%s)", ErrUnknownCommand, fields[0], help)
	}

	if err = entity.CheckMove(that.state, cell); err != nil {
		return err
	}

	that.state = entity.ApplyMove(that.state, cell)
	that.logger.Debug("move applied", "cell", cell, "step", that.state.Step)

	return nil
}

func (that *Console) render() {
	fmt.Fprint(that.out, RenderBoard(that.out, that.state.Current().Board))
	fmt.Fprintln(that.out, that.out.String(entity.StatusLabel(entity.Status(that.state))).Bold())

	for _, move := range entity.Moves(that.state) {
		line := fmt.Sprintf("  %d. %s", move.Step, move.Label)
		if move.Step == that.state.Step {
			fmt.Fprintln(that.out, that.out.String(line).Underline())
			continue
		}

		fmt.Fprintln(that.out, that.out.String(line).Faint())
	}
}
