// Command pythowon is the language's CLI driver: run a source file, start
// an interactive REPL, or print version/help, built on cobra for argument
// handling and readline for interactive line editing.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/kristofer/pythowon/pkg/vm"
)

const version = "0.1.0"

// Exit codes match the host contract: OK, compile error, runtime error,
// CLI usage error, and "couldn't open the file" respectively.
const (
	exitOK            = 0
	exitCompileError  = 65
	exitRuntimeError  = 70
	exitUsageError    = 64
	exitFileOpenError = 74
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(exitUsageError)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pythowon [file]",
		Short:         "pythowon is a stack-based bytecode interpreter",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runRepl(cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			return runFile(args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	root.AddCommand(newRunCommand(), newReplCommand())
	return root
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Run a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func newReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start the interactive REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runFile(path string, stdout, stderr io.Writer) error {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "pythowon: can't open file %q: %v\n", path, err)
		os.Exit(exitFileOpenError)
	}

	machine := vm.New(stdout, stderr)
	result, runErr := machine.Interpret(string(source))
	switch result {
	case vm.InterpretCompileError:
		os.Exit(exitCompileError)
	case vm.InterpretRuntimeError:
		os.Exit(exitRuntimeError)
	}
	return runErr
}

const replPrompt = "PythOwOn <<< "

// runRepl reads one line at a time and interprets it against a VM that
// persists across lines, so a variable declared on one line is visible on
// the next -- the same globals table, not a fresh Interpret each time.
func runRepl(stdout, stderr io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	machine := vm.New(stdout, stderr)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		machine.Interpret(line)
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.pythowon_history"
}
