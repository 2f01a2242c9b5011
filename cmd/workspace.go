package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/grovetools/kw/pkg/service"
)

func NewWorkspaceCmd(svc **service.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Inspect workspaces",
		Long:    `Show the current workspace and the workspaces registered on this machine.`,
	}

	cmd.AddCommand(
		newWorkspaceListCmd(svc),
		newWorkspaceCurrentCmd(svc),
	)

	return cmd
}

func newWorkspaceListCmd(svc **service.Service) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			workspaces, err := s.Workspaces()
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(workspaces)
			}
			if len(workspaces) == 0 {
				fmt.Println(mutedStyle.Render("No workspaces registered"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPATH\tLAST USED")
			for _, ws := range workspaces {
				name := ws.Name
				if ws.Path == s.Workspace.Path {
					name = "* " + name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, ws.Path, humanize.Time(ws.LastUsed))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func newWorkspaceCurrentCmd(svc **service.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			ws := s.Workspace

			sel, err := s.Current()
			if err != nil {
				return err
			}
			params, err := s.Params()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROPERTY\tVALUE")
			fmt.Fprintln(w, "--------\t-----")
			fmt.Fprintf(w, "Name\t%s\n", ws.Name)
			fmt.Fprintf(w, "Path\t%s\n", ws.Path)
			fmt.Fprintf(w, "Sandbox\t%t\n", ws.Sandbox)
			fmt.Fprintf(w, "Selected\t%d\n", len(sel))
			fmt.Fprintf(w, "Parameters\t%d\n", len(params))
			fmt.Fprintf(w, "History\t%d\n", s.History.Len())
			return w.Flush()
		},
	}

	return cmd
}
