package graphfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/shlex"

	cells "github.com/pumped-fn/cells-go"
)

// KindTag marks every built node with the kind it came from
var KindTag = cells.NewTag[Kind]("graphfile.kind")

func (b *Built) node(spec NodeSpec, out io.Writer) *cells.Node {
	cell := b.Cells[spec.Name]
	tag := cells.WithNodeTag(KindTag, spec.Kind)

	inputs := make([]*cells.Cell[string], 0, len(spec.After))
	versioned := make([]cells.Versioned, 0, len(spec.After))
	for _, dep := range spec.After {
		inputs = append(inputs, b.Cells[dep])
		versioned = append(versioned, b.Cells[dep])
	}
	joined := func() string {
		values := make([]string, len(inputs))
		for i, c := range inputs {
			values[i] = c.Value()
		}
		return strings.Join(values, "\n")
	}

	switch spec.Kind {
	case KindTimer:
		return cells.NewNode(spec.Name, timerInput(spec.Interval, cell), tag)
	case KindWatch:
		return cells.NewNode(spec.Name, watchInput(spec.Path, cell), tag)
	case KindExec:
		return cells.FuncN(spec.Name, versioned, cell, func(ctx context.Context) (string, error) {
			return runCommand(ctx, spec.Command, joined())
		}, tag)
	case KindSleep:
		return cells.FuncN(spec.Name, versioned, cell, func(ctx context.Context) (string, error) {
			t := time.NewTimer(spec.Interval)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-t.C:
				return joined(), nil
			}
		}, tag)
	case KindPrint:
		return cells.FuncN(spec.Name, versioned, cell, func(ctx context.Context) (string, error) {
			value := joined()
			if _, err := fmt.Fprintf(out, "%s: %s\n", spec.Name, value); err != nil {
				return "", err
			}
			return value, nil
		}, tag)
	default:
		return cells.FuncN(spec.Name, versioned, cell, func(ctx context.Context) (string, error) {
			return spec.Value, nil
		}, tag)
	}
}

func timerInput(interval time.Duration, out *cells.Cell[string]) cells.Func {
	return func(ctx context.Context) error {
		t := time.NewTimer(interval)
		defer t.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			out.Assign(now.Format(time.RFC3339Nano))
			return nil
		}
	}
}

// watchInput blocks until path is written, created, removed or renamed and
// stores the event. Events between two calls are not reported.
func watchInput(path string, out *cells.Cell[string]) cells.Func {
	return func(ctx context.Context) error {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()

		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err, ok := <-watcher.Errors:
				if !ok {
					return fmt.Errorf("watching %s: watcher closed", path)
				}
				return err
			case event, ok := <-watcher.Events:
				if !ok {
					return fmt.Errorf("watching %s: watcher closed", path)
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				out.Assign(fmt.Sprintf("%s %s", event.Op, event.Name))
				return nil
			}
		}
	}
}

func runCommand(ctx context.Context, cmdline, stdin string) (string, error) {
	argv, err := shlex.Split(cmdline)
	if err != nil {
		return "", fmt.Errorf("parsing command %q: %w", cmdline, err)
	}
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return "", fmt.Errorf("%s: %w", argv[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
