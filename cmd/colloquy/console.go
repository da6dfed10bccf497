package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/colloquy"
	"github.com/poiesic/colloquy/ingestion"
)

var exitWords = map[string]bool{"sair": true, "exit": true, "quit": true}

const (
	uploadCommand = "/upload"
	resetCommand  = "/reset"
)

// console runs the interactive chat loop of one session.
type console struct {
	assistant *colloquy.Assistant
	sessionID string
	out       io.Writer
}

func newConsole(a *colloquy.Assistant, sessionID string, out io.Writer) *console {
	return &console{assistant: a, sessionID: sessionID, out: out}
}

// Run reads questions from in until an exit word, end of input or
// cancellation. Turn failures are printed and the loop continues.
func (c *console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case exitWords[strings.ToLower(line)]:
			return nil
		case line == resetCommand:
			c.reset()
		case line == uploadCommand || strings.HasPrefix(line, uploadCommand+" "):
			c.upload(ctx, strings.TrimSpace(strings.TrimPrefix(line, uploadCommand)))
		default:
			c.ask(ctx, line)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (c *console) ask(ctx context.Context, question string) {
	streamed := false
	answer, err := c.assistant.RespondStream(ctx, c.sessionID, question, func(_ context.Context, chunk string) error {
		streamed = true
		_, err := io.WriteString(c.out, chunk)
		return err
	})
	if err != nil {
		if streamed {
			fmt.Fprintln(c.out)
		}
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		return
	}
	if !streamed {
		fmt.Fprint(c.out, answer.Text)
	}
	fmt.Fprintln(c.out)
}

func (c *console) upload(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintf(c.out, "usage: %s <file> (%s)\n", uploadCommand, strings.Join(ingestion.SupportedExtensions(), ", "))
		return
	}
	report, err := ingestFile(ctx, c.assistant, c.sessionID, path)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, describeReport(report))
}

func (c *console) reset() {
	if err := c.assistant.Reset(c.sessionID); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Conversation cleared.")
}
