package adapters

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"

	"storagectl/internal/ports"
)

// LinePrompter writes a prompt and reads one line of operator input.
type LinePrompter struct {
	In  io.Reader
	Out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) LinePrompter {
	return LinePrompter{In: in, Out: out}
}

// NewStdioPrompter prompts on stderr so stdout stays parseable.
func NewStdioPrompter() LinePrompter {
	return LinePrompter{In: os.Stdin, Out: os.Stderr}
}

func (p LinePrompter) Prompt(ctx context.Context, message string) (string, error) {
	if file, ok := p.In.(*os.File); ok && !isTerminal(file) {
		log.Ctx(ctx).Debug().Msg("stdin is not a terminal, reading confirmation from input stream")
	}
	if _, err := fmt.Fprint(p.Out, message); err != nil {
		return "", err
	}
	type answer struct {
		line string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		done <- answer{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-done:
		return a.line, a.err
	}
}

func isTerminal(file *os.File) bool {
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

var _ ports.PrompterPort = LinePrompter{}
