// Package console implements the operator REPL: a small, fixed set of
// inspection and maintenance commands, grounded directly on
// scm/prompt.go's Repl (same readline config shape, same interrupt/EOF
// handling, same per-line anti-panic recovery), rewritten from "evaluate
// an expression" to "dispatch one of a handful of ops commands".
package console

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kubux/whiteboard/boardregistry"
	"github.com/kubux/whiteboard/persistence"
)

const (
	prompt       = "\033[32mwhiteboard>\033[0m "
	resultPrefix = "\033[31m=\033[0m "
)

// Flushable is satisfied by cache.Manager[T] for any T, without the
// console package needing to know the cached entity type.
type Flushable interface {
	FlushAll()
	Stats() string
}

// Deps are the subsystems the console commands operate on.
type Deps struct {
	Boards   *boardregistry.Registry
	Backend  persistence.Backend
	Pages    Flushable
	BoardsFl Flushable
}

// Run starts the REPL and blocks until EOF or interrupt. The `export`
// command writes its archive to a file named <boardId>.tar.xz in the
// current directory.
func Run(deps Deps) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       ".whiteboard-console-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("console: starting readline: %w", err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("console: command panicked:", r)
				}
			}()
			out := dispatch(deps, line)
			fmt.Print(resultPrefix)
			fmt.Println(out)
		}()
	}
}

func dispatch(deps Deps, line string) string {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "boards":
		return cmdBoards(deps)
	case "pages":
		return cmdPages(deps, args)
	case "stats":
		return cmdStats(deps)
	case "flush":
		return cmdFlush(deps)
	case "export":
		return cmdExport(deps, args)
	default:
		return fmt.Sprintf("unknown command %q (try: boards, pages <board>, stats, flush, export <board>, quit)", cmd)
	}
}

func cmdBoards(deps Deps) string {
	boards := deps.Boards.All()
	if len(boards) == 0 {
		return "(no boards registered)"
	}
	var b strings.Builder
	for _, board := range boards {
		fmt.Fprintf(&b, "%s (%d pages)\n", board.ID, len(board.PageOrder()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func cmdPages(deps Deps, args []string) string {
	if len(args) != 1 {
		return "usage: pages <board>"
	}
	board := deps.Boards.Get(args[0])
	if board == nil {
		return fmt.Sprintf("no such board: %s", args[0])
	}
	return strings.Join(board.PageOrder(), "\n")
}

func cmdStats(deps Deps) string {
	return fmt.Sprintf("pages: %s\nboards: %s", deps.Pages.Stats(), deps.BoardsFl.Stats())
}

func cmdFlush(deps Deps) string {
	deps.Pages.FlushAll()
	deps.BoardsFl.FlushAll()
	return "flushed"
}

func cmdExport(deps Deps, args []string) string {
	if len(args) != 1 {
		return "usage: export <board>"
	}
	boardID := args[0]
	board := deps.Boards.Get(boardID)
	if board == nil {
		return fmt.Sprintf("no such board: %s", boardID)
	}
	r, err := persistence.ExportBoard(deps.Backend, boardID, board.PageOrder())
	if err != nil {
		return fmt.Sprintf("export failed: %v", err)
	}
	path := boardID + ".tar.xz"
	f, err := os.Create(path)
	if err != nil {
		return fmt.Sprintf("export failed: %v", err)
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Sprintf("export failed: %v", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Sprintf("export failed: %v", err)
	}
	return fmt.Sprintf("exported %s to %s (%d bytes)", boardID, path, buf.Len())
}
