// Package prompt asks the operator about name collisions and large files.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"golang.org/x/term"

	"pushback/internal/pushback"
)

var (
	yellow = color.New(color.FgYellow, color.Bold)
	faint  = color.New(color.Faint)
)

// ErrNoAnswer is returned when input ends before a question is answered.
var ErrNoAnswer = errors.New("no answer: input closed")

// Prompter implements pushback.CollisionDecider and pushback.LargeFileDecider
// on a line-oriented reader and writer. When it is not interactive no
// question is asked: collisions abort and large files are kept.
type Prompter struct {
	in          *lineReader
	out         io.Writer
	interactive bool
	ctx         context.Context
}

// New creates a Prompter reading answers from in and writing questions to out.
func New(in io.Reader, out io.Writer, interactive bool) *Prompter {
	return &Prompter{
		in:          &lineReader{r: bufio.NewReader(in)},
		out:         out,
		interactive: interactive,
		ctx:         context.Background(),
	}
}

// NewTerminal creates a Prompter on stdin, interactive only when stdin is a terminal.
func NewTerminal(out io.Writer) *Prompter {
	return New(os.Stdin, out, term.IsTerminal(int(os.Stdin.Fd())))
}

// WithContext returns a Prompter sharing p's input whose questions give up
// with pushback.ErrInterrupted once ctx is done.
func (p *Prompter) WithContext(ctx context.Context) *Prompter {
	cp := *p
	cp.ctx = ctx
	return &cp
}

// Interactive reports whether questions will be asked.
func (p *Prompter) Interactive() bool { return p.interactive }

func (p *Prompter) interrupted() error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", pushback.ErrInterrupted, err)
	}
	return nil
}

func (p *Prompter) ask(question string) (string, error) {
	if err := p.interrupted(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, question)
	line, err := p.in.next(p.ctx)
	if err != nil && (err != io.EOF || line == "") {
		switch {
		case err == io.EOF:
			fmt.Fprintln(p.out)
			return "", ErrNoAnswer
		case p.ctx.Err() != nil:
			fmt.Fprintln(p.out)
			return "", fmt.Errorf("%w: %v", pushback.ErrInterrupted, err)
		}
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

// lineReader reads lines on its own goroutine so a wait for an answer can
// be abandoned. A line read while nobody is asking is kept for the next ask.
type lineReader struct {
	r     *bufio.Reader
	once  sync.Once
	lines chan readResult
}

type readResult struct {
	line string
	err  error
}

func (l *lineReader) next(ctx context.Context) (string, error) {
	l.once.Do(func() {
		l.lines = make(chan readResult)
		go l.loop()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-l.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}

func (l *lineReader) loop() {
	defer close(l.lines)
	for {
		line, err := l.r.ReadString('\n')
		l.lines <- readResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// YesNo asks msg and returns def on an empty answer.
func (p *Prompter) YesNo(msg string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	answer, err := p.ask(fmt.Sprintf("%s [%s]: ", msg, hint))
	if err != nil {
		return false, err
	}
	if answer == "" {
		return def, nil
	}
	return answer == "y" || answer == "yes", nil
}

// DecideCollision lists the conflicting directories and asks
// update/create/abort, defaulting to abort.
func (p *Prompter) DecideCollision(candidates []string) (pushback.CollisionChoice, error) {
	if !p.interactive {
		fmt.Fprintln(p.out, "Name collision and no terminal to ask; aborting.")
		fmt.Fprintln(p.out, "Tip: use --force-collision-update or --force-collision-new")
		return pushback.ChoiceAbort, nil
	}
	if err := p.interrupted(); err != nil {
		return pushback.ChoiceAbort, err
	}

	yellow.Fprintln(p.out, "Found backup(s) with the same name but different suffix:")
	for _, c := range candidates {
		fmt.Fprintf(p.out, "   - %s\n", c)
	}
	fmt.Fprintln(p.out, "\nOptions:")
	fmt.Fprintln(p.out, "  (u) Update an existing folder")
	fmt.Fprintln(p.out, "  (c) Create a new folder and back up there")
	fmt.Fprintln(p.out, "  (a) Abort")

	answer, err := p.ask("Choose [u/c/a] [a]: ")
	if err != nil {
		return pushback.ChoiceAbort, err
	}
	if answer == "" {
		answer = "a"
	}
	choice := pushback.ParseCollisionChoice(answer)
	if choice == pushback.ChoiceAbort {
		faint.Fprintln(p.out, "Aborted. (Tip: use --force-collision-update or --force-collision-new)")
	}
	return choice, nil
}

// SelectIgnored asks keep all / ignore all / select, defaulting to select,
// where each file is kept only on an explicit yes.
func (p *Prompter) SelectIgnored(files []pushback.LargeFile) ([]pushback.LargeFile, error) {
	if !p.interactive {
		return nil, nil
	}

	answer, err := p.ask("Handle large files? (k=keep all / i=ignore all / s=select) [s]: ")
	if err != nil {
		return nil, err
	}
	switch answer {
	case "k":
		return nil, nil
	case "i":
		return append([]pushback.LargeFile(nil), files...), nil
	}

	var ignored []pushback.LargeFile
	for _, f := range files {
		keep, err := p.YesNo(fmt.Sprintf("Keep %s (%s)?", f.RelPath, FormatSize(f.Size)), false)
		if err != nil {
			return nil, err
		}
		if !keep {
			ignored = append(ignored, f)
		}
	}
	return ignored, nil
}

// ConfirmPersist asks whether ignored files go into .backupignore, defaulting to yes.
func (p *Prompter) ConfirmPersist(ignored []pushback.LargeFile) (bool, error) {
	if !p.interactive {
		return false, nil
	}
	return p.YesNo("Append ignored ones to .backupignore for next time?", true)
}

// FormatSize renders a byte count with binary units, e.g. "1.5GiB".
func FormatSize(n int64) string {
	return units.BytesSize(float64(n))
}

var (
	_ pushback.CollisionDecider = (*Prompter)(nil)
	_ pushback.LargeFileDecider = (*Prompter)(nil)
)
