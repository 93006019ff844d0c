package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ChatOptions holds flags for the chat command.
type ChatOptions struct {
	*RootOptions
	Seed    string
	Channel string
}

// NewChatCommand creates the chat command: one conversation over
// stdin/stdout, driven by the same engine the HTTP transports use.
func NewChatCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChatOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot on the terminal",
		Long: `Read messages line by line from stdin and print each reply.

Example:
  rewards-bot chat --store memory --seed testdata/fixture.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Seed, "seed", "", "fixture to load before the conversation starts")
	cmd.Flags().StringVar(&opts.Channel, "channel", "console", "channel address reported to the engine")

	return cmd
}

func runChat(opts *ChatOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(nil)
	if err != nil {
		return err
	}
	log, err := opts.newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Seed != "" {
		fx, err := LoadFixture(opts.Seed)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load fixture", err)
		}
		if err := fx.Apply(ctx, a.store); err != nil {
			return WrapExitError(ExitFailure, "failed to seed", err)
		}
	}

	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())
	for in.Scan() {
		line := strings.TrimRight(in.Text(), "\r")
		fmt.Fprintln(out, a.engine.Handle(ctx, opts.Channel, line))
		fmt.Fprintln(out)
	}
	if err := in.Err(); err != nil {
		return WrapExitError(ExitFailure, "reading input", err)
	}
	return nil
}
