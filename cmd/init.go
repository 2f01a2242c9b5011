package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/grovetools/kw/cmd/config"
	"github.com/grovetools/kw/pkg/service"
)

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a workspace",
		Long: `Create a workspace in the given directory (default: the current directory).

This command will:
- Create the .kw control directory with its archive, settings, cache and index
- Register the workspace so 'kw workspace list' can find it`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipServiceAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(abs, 0755); err != nil {
				return fmt.Errorf("create workspace directory: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			svc, err := config.NewService(cmd.Context(), cfg, service.Config{Workspace: abs, NoSandbox: true})
			if err != nil {
				return err
			}
			defer svc.Close()

			fmt.Printf("Initialized workspace '%s' at %s\n", svc.Workspace.Name, svc.Workspace.Path)
			fmt.Println("\nReady to use! Try 'kw import <file-or-url>' to add your first item.")
			return nil
		},
	}

	return cmd
}
