package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// prompter asks yes/no questions. Workers share one prompter, so questions
// are serialized.
type prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// confirm defaults to no on empty input or EOF.
func (p *prompter) confirm(question string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		_, _ = fmt.Fprintln(p.out)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
