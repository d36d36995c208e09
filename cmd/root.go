package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/samhoang/asma/internal/logging"
)

var Version = "dev"

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitMissingFile = 2
)

var (
	debugFlag bool
	logFormat string

	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "asma",
	Short: "Agent Skills Manager",
	Long: `asma (Agent Skills Manager) installs Claude agent skills declared in
skillset.yaml. Skills come from local directories or GitHub repositories and
are installed globally (~/.claude/skills) or per project (.claude/skills).`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Print debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	format, err := logging.ParseFormat(logFormat)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if debugFlag {
		level = slog.LevelDebug
	}
	logger = logging.New(
		logging.WithFormat(format),
		logging.WithLevel(level),
		logging.WithOutput(cmd.ErrOrStderr()),
	)
	return nil
}

// exitError carries a specific exit code. A nil err means the failure was
// already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func missingFile(format string, args ...any) error {
	return &exitError{code: exitMissingFile, err: fmt.Errorf(format, args...)}
}

// reported signals a failure whose details were already printed
func reported() error {
	return &exitError{code: exitFailure}
}

func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	code := exitFailure
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		err = ee.err
	}
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error:"), err)
	}
	return code
}
