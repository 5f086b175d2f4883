package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/vietgrow/askgate/internal/types"
)

// Admitter gates each question against the daily quota
type Admitter interface {
	Check(ctx context.Context, id types.Identity) error
	Remaining(id types.Identity) int
}

// Answerer runs the answer pipeline
type Answerer interface {
	Answer(ctx context.Context, question string, id types.Identity) (*types.AnswerResult, error)
}

// TopicLister lists popular topics
type TopicLister interface {
	Top(ctx context.Context, n int) ([]*types.Topic, error)
}

// REPL represents the interactive shell
type REPL struct {
	admission Admitter
	answers   Answerer
	topics    TopicLister
	identity  types.Identity
	history   string
	out       io.Writer
	rl        *readline.Instance
	ctx       context.Context
	commands  map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Admission Admitter
	Answers   Answerer
	Topics    TopicLister

	// Identity is charged for every question; defaults to ip:127.0.0.1
	Identity types.Identity

	// HistoryFile persists readline history when set
	HistoryFile string

	Out io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Admission == nil || cfg.Answers == nil {
		return nil, fmt.Errorf("admission and answers are required")
	}

	id := cfg.Identity
	if id.IP == "" && id.User == nil {
		id.IP = "127.0.0.1"
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		admission: cfg.Admission,
		answers:   cfg.Answers,
		topics:    cfg.Topics,
		identity:  id,
		history:   cfg.HistoryFile,
		out:       out,
		ctx:       context.Background(),
		commands:  make(map[string]CommandHandler),
	}

	r.registerCommands()

	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("ask> "),
		HistoryFile:       r.history,
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl
	r.printWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// processInput runs a command, or asks the line as a question
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	if handler, ok := r.commands[parts[0]]; ok {
		return handler(parts[1:])
	}
	if strings.HasPrefix(parts[0], "/") {
		return fmt.Errorf("unknown command %s (try /help)", parts[0])
	}

	return r.ask(line)
}

func (r *REPL) ask(question string) error {
	if err := r.admission.Check(r.ctx, r.identity); err != nil {
		if errors.Is(err, types.ErrQuotaExceeded) {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(r.out, "%s daily question limit reached for %s, come back tomorrow\n",
				yellow("Limit:"), r.identity.Key())
			return nil
		}
		return err
	}

	result, err := r.answers.Answer(r.ctx, question, r.identity)
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", result.Answer)
	if result.Source == types.SourceCache {
		fmt.Fprintf(r.out, "%s\n", gray(fmt.Sprintf("(cached answer for %q, score %.2f)", result.MatchedQuestion, result.Score)))
	}
	fmt.Fprintf(r.out, "%s\n\n", gray(fmt.Sprintf("%d questions left today", r.admission.Remaining(r.identity))))
	return nil
}

func (r *REPL) registerCommands() {
	r.commands["/help"] = r.cmdHelp
	r.commands["/?"] = r.cmdHelp
	r.commands["/quota"] = r.cmdQuota
	r.commands["/topics"] = r.cmdTopics
	r.commands["/exit"] = r.cmdExit
	r.commands["/quit"] = r.cmdExit
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

func (r *REPL) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("/help"),
		readline.PcItem("/quota"),
		readline.PcItem("/topics"),
		readline.PcItem("/exit"),
	)
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("askgate"))
	fmt.Fprintln(r.out, "Type a question to ask it, '/help' for commands, '/exit' to quit")
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"/help, /?", "Show this help message"},
		{"/quota", "Show questions left today"},
		{"/topics [n]", "Show the most popular topics"},
		{"/exit, /quit", "Exit the REPL"},
	}
	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %-14s  %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Anything else is asked as a question.")
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdQuota(args []string) error {
	fmt.Fprintf(r.out, "%s: %d questions left today\n", r.identity.Key(), r.admission.Remaining(r.identity))
	return nil
}

func (r *REPL) cmdTopics(args []string) error {
	if r.topics == nil {
		return fmt.Errorf("topics are not available")
	}

	n := 0
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		n = v
	}

	top, err := r.topics.Top(r.ctx, n)
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}
	if len(top) == 0 {
		fmt.Fprintln(r.out, "No topics yet")
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Popular Topics"))
	for i, t := range top {
		fmt.Fprintf(r.out, "  %d. %s %s\n", i+1, t.Title, gray(fmt.Sprintf("(%d)", t.Popularity)))
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	if r.rl != nil {
		r.rl.Close()
	}
	return io.EOF
}
