package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovetools/kw/cmd"
	"github.com/grovetools/kw/cmd/config"
	"github.com/grovetools/kw/pkg/service"
)

func main() {
	if err := newApp().execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is the root command together with the service it opens.
type app struct {
	root *cobra.Command
	svc  *service.Service
}

// execute runs the command line and closes the service whether or not the
// command succeeded.
func (a *app) execute(ctx context.Context) error {
	err := a.root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func (a *app) close() error {
	if a.svc == nil {
		return nil
	}
	err := a.svc.Close()
	a.svc = nil
	if err != nil {
		return fmt.Errorf("close service: %w", err)
	}
	return nil
}

func newApp() *app {
	a := &app{}
	svc := &a.svc

	rootCmd := &cobra.Command{
		Use:   "kw",
		Short: "A knowledge workspace for importing content and deriving new items with actions",
		Long: `kw keeps documents and resources in a workspace directory and runs
actions over them. Every derived item records where it came from, and
results are cached by action, parameters and input content.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddGlobalFlags(rootCmd)

	rootCmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		// This runs once before any subcommand
		config.InitConfig()
		if cmd.SkipsService(c) {
			return nil
		}
		s, err := config.InitService(c.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize service: %w", err)
		}
		*svc = s
		return nil
	}

	// Add subcommands
	rootCmd.AddCommand(cmd.NewInitCmd())
	rootCmd.AddCommand(cmd.NewImportCmd(svc))
	rootCmd.AddCommand(cmd.NewListCmd(svc))
	rootCmd.AddCommand(cmd.NewShowCmd(svc))
	rootCmd.AddCommand(cmd.NewSearchCmd(svc))
	rootCmd.AddCommand(cmd.NewSelectCmd(svc))
	rootCmd.AddCommand(cmd.NewRunCmd(svc))
	rootCmd.AddCommand(cmd.NewSuggestCmd(svc))
	rootCmd.AddCommand(cmd.NewActionsCmd(svc))
	rootCmd.AddCommand(cmd.NewLineageCmd(svc))
	rootCmd.AddCommand(cmd.NewParamsCmd(svc))
	rootCmd.AddCommand(cmd.NewArchiveCmd(svc))
	rootCmd.AddCommand(cmd.NewUnarchiveCmd(svc))
	rootCmd.AddCommand(cmd.NewReindexCmd(svc))
	rootCmd.AddCommand(cmd.NewWorkspaceCmd(svc))
	rootCmd.AddCommand(cmd.NewVersionCmd())

	a.root = rootCmd
	return a
}
