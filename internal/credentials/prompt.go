package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"imagegen/internal/apperrors"
)

// Prompt asks the user for a key and offers to save it to the config file.
type Prompt struct {
	in         *bufio.Reader
	out        io.Writer
	configPath string

	// readSecret reads a line without echo when input is a terminal.
	readSecret func() (string, error)
}

// NewPrompt creates a prompt reading from in and writing questions to out.
// When in is a terminal the key is read without echo.
func NewPrompt(in io.Reader, out io.Writer, configPath string) *Prompt {
	p := &Prompt{
		in:         bufio.NewReader(in),
		out:        out,
		configPath: configPath,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		p.readSecret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			return string(b), err
		}
	}
	return p
}

// Token implements Provider.
func (p *Prompt) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fmt.Fprintln(p.out, "ModelScope API key not found.")
	fmt.Fprintf(p.out, "Get your API key from: %s\n\n", TokenPage)

	var key string
	var err error
	if p.readSecret != nil {
		fmt.Fprint(p.out, "Enter your ModelScope API key (input will be hidden): ")
		key, err = p.readSecret()
	} else {
		fmt.Fprint(p.out, "Enter your ModelScope API key: ")
		key, err = p.readLine()
	}
	key = strings.TrimSpace(key)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", apperrors.Credentials("failed to read API key", err)
	}
	if key == "" {
		fmt.Fprintln(p.out)
		return "", notFound(p.configPath)
	}

	if !strings.HasPrefix(key, KeyPrefix) {
		fmt.Fprintf(p.out, "Warning: API key format looks incorrect (should start with %q)\n", KeyPrefix)
		answer, _ := p.ask("Continue anyway? (y/N): ")
		if answer != "y" && answer != "yes" {
			return "", apperrors.Credentials("API key rejected", nil)
		}
	}

	fmt.Fprintln(p.out)
	// An empty answer accepts the default; end of input does not.
	answer, err := p.ask("Save API key to config file for future use? (Y/n): ")
	if answer == "y" || answer == "yes" || (answer == "" && err == nil) {
		if err := Save(p.configPath, key); err != nil {
			fmt.Fprintf(p.out, "Warning: Could not save API key to config file: %v\n", err)
		} else {
			fmt.Fprintf(p.out, "API key saved to: %s\n", p.configPath)
		}
	}
	return key, nil
}

func (p *Prompt) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.readLine()
	return strings.ToLower(strings.TrimSpace(line)), err
}

func (p *Prompt) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}
