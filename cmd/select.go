package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovetools/kw/pkg/selection"
	"github.com/grovetools/kw/pkg/service"
)

func NewSelectCmd(svc **service.Service) *cobra.Command {
	var (
		previous     bool
		next         bool
		showHistory  bool
		clearHistory bool
		unselect     bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:     "select [items...]",
		Aliases: []string{"sel"},
		Short:   "Show or change the current selection",
		Long: `Show or change the current selection.

Actions run on the current selection when no items are given. Every
change is recorded in a bounded history that can be walked back and
forth.

Examples:
  kw select                         # Show the current selection
  kw select docs/a.doc.md b.md      # Select two items
  kw select --unselect b.md         # Drop an item from the selection
  kw select --previous              # Go back to the previous selection
  kw select --history               # Show the selection history`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc

			var (
				sel selection.Selection
				err error
			)
			switch {
			case clearHistory:
				if err := s.ClearSelection(); err != nil {
					return err
				}
				fmt.Println("Selection history cleared")
				return nil
			case showHistory:
				return printHistory(s.History)
			case previous:
				sel, err = s.Previous()
			case next:
				sel, err = s.Next()
			case unselect:
				if len(args) == 0 {
					return fmt.Errorf("--unselect needs at least one item")
				}
				sel, err = s.Unselect(args...)
			case len(args) > 0:
				sel, err = s.Select(args...)
			default:
				sel, err = s.Current()
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(sel)
			}
			printSelection(os.Stdout, "Selected", sel)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&previous, "previous", "p", false, "Restore the previous selection")
	cmd.Flags().BoolVarP(&next, "next", "n", false, "Restore the next selection")
	cmd.Flags().BoolVar(&showHistory, "history", false, "Show the selection history")
	cmd.Flags().BoolVar(&clearHistory, "clear", false, "Forget the whole selection history")
	cmd.Flags().BoolVarP(&unselect, "unselect", "u", false, "Remove the given items from the selection")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.MarkFlagsMutuallyExclusive("previous", "next", "history", "clear", "unselect")

	return cmd
}

func printHistory(h *selection.History) error {
	entries := h.List()
	if len(entries) == 0 {
		fmt.Println(mutedStyle.Render("No selection history"))
		return nil
	}
	cur := h.CurrentIndex()
	for i := len(entries) - 1; i >= 0; i-- {
		marker := "  "
		label := fmt.Sprintf("%d", i-cur)
		if i == cur {
			marker = successStyle.Render("▶ ")
			label = "current"
		}
		fmt.Printf("%s%s %s\n", marker, headingStyle.Render(label), mutedStyle.Render(fmt.Sprintf("(%d)", len(entries[i]))))
		for _, p := range entries[i] {
			fmt.Printf("    %s\n", pathStyle.Render(p))
		}
	}
	return nil
}
