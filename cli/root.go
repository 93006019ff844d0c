/*
Package cli is the rewards-bot command line.

COMMANDS:
  serve    HTTP server with the chat transports and the periodic reload
  chat     One conversation on stdin/stdout, for trying the flow locally
  reload   Load the directory once and print what was found
  seed     Write employees and rewards from a YAML fixture into the store

GLOBAL FLAGS:
  --config   YAML config file (see config package for keys and env vars)
  --store    Overrides STORE_DRIVER
  --verbose  Debug logging

SEE ALSO:
  - app.go: component wiring shared by every command
  - config/config.go: configuration sources
*/
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/rewards-bot/config"
	"github.com/warp/rewards-bot/logger"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // runtime failure (store unreachable, server error)
	ExitCommandError = 2 // bad configuration or arguments
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, ExitFailure when err is
// not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	StoreDriver string
	Verbose     bool
}

// NewRootCommand creates the root command for the rewards-bot CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rewards-bot",
		Short: "Conversational reward redemption",
		Long: `rewards-bot lets employees redeem reward points over chat.

A requester identifies with a CPF or e-mail, sees the rewards their tier and
balance allow, picks one and receives a receipt. Balances and the audit
history live in a row store: Google Sheets, SQLite or memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.StoreDriver, "store", "", "store driver (memory|sqlite|sheets)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewReloadCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// loadConfig applies the global flags on top of file and environment and
// validates the result.
func (o *RootOptions) loadConfig(apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.StoreDriver != "" {
		cfg.StoreDriver = o.StoreDriver
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

func (o *RootOptions) newLogger(cfg config.Config) (*logger.Logger, error) {
	mode := cfg.LogMode
	if o.Verbose {
		mode = "dev"
	}
	log, err := logger.New(mode, cfg.LogHashSalt)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	return log, nil
}
