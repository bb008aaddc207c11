// Command minai is a virtual Unix shell with an AI agent that turns plain
// requests into shell commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set via -ldflags during build
var Version = "dev"

const banner = "Welcome to MinAI Terminal! Type 'help' to see available commands, 'ai' for agent mode."

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		g     globalFlags
		mount string
	)
	root := &cobra.Command{
		Use:   "minai",
		Short: "MinAI - a virtual Unix shell with an AI agent",
		Long: `MinAI emulates a small Unix shell over a persisted virtual filesystem.

Run without arguments to start the interactive terminal. Type 'ai' inside it
to describe tasks in plain language and let the agent plan the commands.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), &g, mount)
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default $MINAI_CONFIG_PATH or ~/.minai/config.yaml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")
	root.Flags().StringVar(&mount, "mount", "", "also expose the virtual tree read-only at this host directory")

	root.AddCommand(
		newExecCmd(&g),
		newAgentCmd(&g),
		newResetCmd(&g),
		newMountCmd(&g),
		newSetupCmd(&g),
		newVersionCmd(),
	)
	return root
}

func newExecCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <line>...",
		Short: "Run shell lines non-interactively, one argument per line",
		Example: `  minai exec "mkdir notes" "echo hi > notes/a.txt" "cat notes/a.txt"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := openApp(ctx, g, appOptions{out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()
			for _, line := range args {
				a.session.HandleLine(ctx, line)
				a.session.Settle(ctx)
			}
			return nil
		},
	}
}

func newAgentCmd(g *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "agent <request>...",
		Short: "Ask the agent to plan and run commands for one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := openApp(ctx, g, appOptions{out: cmd.OutOrStdout(), in: cmd.InOrStdin()})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.runAgent(ctx, strings.Join(args, " "), yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "run the plan without asking for confirmation")
	return cmd
}

func newResetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the virtual filesystem to its defaults and forget visited directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), g, appOptions{out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.fs.Reset(); err != nil {
				return fmt.Errorf("reset filesystem: %w", err)
			}
			if err := a.session.Tracker().Clear(); err != nil {
				return fmt.Errorf("clear visits: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Filesystem reset to defaults.")
			return nil
		},
	}
}

func newMountCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mount <dir>",
		Short: "Expose the virtual tree read-only at a host directory until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := openApp(ctx, g, appOptions{out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Mounted at %s. Press Ctrl+C to unmount.\n", args[0])
			return a.mount(ctx, args[0])
		},
	}
}

func newSetupCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Add, change or remove AI provider API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(g, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "MinAI version %s\n", Version)
		},
	}
}
