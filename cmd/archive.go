package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/kw/pkg/service"
	"github.com/grovetools/kw/pkg/store"
)

func NewArchiveCmd(svc **service.Service) *cobra.Command {
	var (
		olderThan    int
		dryRun       bool
		forceArchive bool
	)

	cmd := &cobra.Command{
		Use:   "archive [items...]",
		Short: "Archive items",
		Long: `Move items to the workspace archive.

Without arguments the current selection is archived. Archived items keep
their identity, so cached results and lineage still find them.

Examples:
  kw archive docs/notes.doc.md     # Archive a specific item
  kw archive                       # Archive the current selection
  kw archive --older-than 30       # Archive items untouched for 30 days
  kw archive --dry-run             # Show what would be archived`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc

			refs := args
			if len(refs) == 0 && olderThan > 0 {
				cutoff := time.Now().AddDate(0, 0, -olderThan)
				items, err := s.List(store.ListOptions{})
				if err != nil {
					return err
				}
				for _, item := range items {
					if item.Modified.Before(cutoff) {
						refs = append(refs, item.Path)
					}
				}
				if len(refs) == 0 {
					fmt.Println("No items to archive")
					return nil
				}
			}

			targets := refs
			if len(targets) == 0 {
				targets = s.History.Current()
			}
			if len(targets) == 0 {
				return fmt.Errorf("specify items to archive, select some, or use --older-than")
			}

			if dryRun {
				fmt.Println("Would archive:")
				for _, ref := range targets {
					fmt.Printf("  %s\n", ref)
				}
				return nil
			}

			if !forceArchive && !confirm(fmt.Sprintf("Archive %d %s?", len(targets), plural(len(targets), "item", "items"))) {
				fmt.Println("Cancelled")
				return nil
			}

			moved, err := s.Archive(targets...)
			if err != nil {
				return err
			}
			fmt.Printf("Archived %d %s\n", len(moved), plural(len(moved), "item", "items"))
			for _, p := range moved {
				fmt.Printf("  %s\n", pathStyle.Render(p))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThan, "older-than", 0, "Archive items not modified for N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be archived without doing it")
	cmd.Flags().BoolVar(&forceArchive, "force", false, "Skip confirmation prompt")

	return cmd
}

func NewUnarchiveCmd(svc **service.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unarchive [items...]",
		Short: "Restore archived items",
		Long:  "Move archived items back into the workspace. Without arguments the current selection is restored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			moved, err := (*svc).Unarchive(args...)
			if err != nil {
				return err
			}
			fmt.Printf("Restored %d %s\n", len(moved), plural(len(moved), "item", "items"))
			for _, p := range moved {
				fmt.Printf("  %s\n", pathStyle.Render(p))
			}
			return nil
		},
	}
	return cmd
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	var response string
	_, _ = fmt.Scanln(&response)
	return strings.ToLower(response) == "y"
}
