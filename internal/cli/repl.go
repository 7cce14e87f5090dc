package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/hoidap/internal/models"
)

const (
	// Prompt is printed before each question.
	Prompt = "Bạn: "
	// Farewell is printed when the loop ends.
	Farewell = "Chatbot: Tạm biệt! Hẹn gặp lại bạn."

	maxLineBytes = 1024 * 1024
)

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"thoat": true,
	"thoát": true,
}

// Responder answers one question.
type Responder interface {
	Respond(ctx context.Context, query string) models.ChatResponse
}

// IsExitCommand reports whether line asks to leave the chat.
func IsExitCommand(line string) bool {
	return exitCommands[strings.ToLower(strings.TrimSpace(line))]
}

// REPL reads one question per line from in and writes answers to out until an
// exit command, end of input or cancellation of ctx. Blank lines are ignored.
func REPL(ctx context.Context, in io.Reader, out io.Writer, r Responder) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s", Prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, Farewell)
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if IsExitCommand(line) {
			fmt.Fprintln(out, Farewell)
			return nil
		}
		if err := WriteResponse(out, r.Respond(ctx, line), OutputText); err != nil {
			return err
		}
	}
}
