package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a lightweight stub.
type execIface interface {
	Show(ctx context.Context, args []string) error
	Set(ctx context.Context, args []string) error
	Text(ctx context.Context, args []string) error
	Save(ctx context.Context) error
	Status(ctx context.Context) error
	Diff(ctx context.Context) error
	Resolve(ctx context.Context, args []string) error
	Section(ctx context.Context, args []string) error
	Intake(ctx context.Context) error
	Mark(ctx context.Context, args []string) error
	Transition(ctx context.Context, args []string) error
	Watch(ctx context.Context, args []string) error
	Backups(ctx context.Context) error
	Restore(ctx context.Context, args []string) error
	ConfirmExit(ctx context.Context) bool
}

const helpText = `Available commands:
  show [field...]            print the draft value
  set name=value ...         edit fields (JSON values keep their type)
  text <field>               edit a multi-line text field
  save                       save now instead of waiting for autosave
  status                     draft id, version, unsaved/conflict state
  diff                       local value against the conflicting server copy
  resolve server|mine|merge  leave a conflict
  section <name>             merged view of a section
  intake                     merged view of the whole intake
  mark <section> <status>    set a section status
  transition <status>        move the intake through its lifecycle
  watch <section>            print changes made by other sessions
  backups                    list safety backups of this form
  restore <id>               load a safety backup into the draft
  exit | quit                leave the program`

// runREPL reads commands from reader and dispatches them to a until EOF or
// an exit the session allows. Command errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("intake %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cerr error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "show":
			cerr = a.Show(ctx, args)
		case "set":
			cerr = a.Set(ctx, args)
		case "text":
			cerr = a.Text(ctx, args)
		case "save":
			cerr = a.Save(ctx)
		case "status":
			cerr = a.Status(ctx)
		case "diff":
			cerr = a.Diff(ctx)
		case "resolve":
			cerr = a.Resolve(ctx, args)
		case "section":
			cerr = a.Section(ctx, args)
		case "intake":
			cerr = a.Intake(ctx)
		case "mark":
			cerr = a.Mark(ctx, args)
		case "transition":
			cerr = a.Transition(ctx, args)
		case "watch":
			cerr = a.Watch(ctx, args)
		case "backups":
			cerr = a.Backups(ctx)
		case "restore":
			cerr = a.Restore(ctx, args)
		case "exit", "quit":
			if a.ConfirmExit(ctx) {
				printlnFn("Bye!")
				return
			}
		default:
			printlnFn("Unknown command:", cmd)
		}
		if cerr != nil {
			printlnFn("error:", cerr)
		}
	}
}
