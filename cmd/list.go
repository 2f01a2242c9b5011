package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/service"
	"github.com/grovetools/kw/pkg/store"
	"github.com/grovetools/kw/pkg/tree"
)

func NewListCmd(svc **service.Service) *cobra.Command {
	var (
		listTypes         []string
		listFormats       []string
		listArchived      bool
		listSort          string
		listReverse       bool
		listLimit         int
		listGroup         string
		listTree          bool
		listJSON          bool
		listAllWorkspaces bool
	)

	cmd := &cobra.Command{
		Use:     "list [pattern]",
		Short:   "List items in the current workspace",
		Aliases: []string{"ls"},
		Long: `List items in the current workspace.

Examples:
  kw list                      # List all items, newest first
  kw list 'docs/**'            # List items matching a glob
  kw list -t resource          # List resources only
  kw list --group type         # Group items by type
  kw list --tree               # Show derived items under their inputs
  kw list --all-workspaces     # List items of every known workspace`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc

			opts := store.ListOptions{
				IncludeArchived: listArchived,
				SortBy:          store.SortField(listSort),
				Reverse:         listReverse,
				Limit:           listLimit,
			}
			if len(args) > 0 {
				opts.Pattern = args[0]
			}
			for _, t := range listTypes {
				it, ok := models.ParseItemType(t)
				if !ok {
					return fmt.Errorf("unknown item type %q", t)
				}
				opts.Types = append(opts.Types, it)
			}
			for _, f := range listFormats {
				format, ok := models.ParseFormat(f)
				if !ok {
					return fmt.Errorf("unknown format %q", f)
				}
				opts.Formats = append(opts.Formats, format)
			}

			if listAllWorkspaces {
				all, err := s.ListAllWorkspaces(opts)
				if err != nil {
					return err
				}
				if listJSON {
					return printJSON(all)
				}
				for _, wi := range all {
					fmt.Println(headingStyle.Render(fmt.Sprintf("%s (%d)", wi.Workspace.Name, len(wi.Items))) + " " + mutedStyle.Render(wi.Workspace.Path))
					if err := printItems(wi.Items); err != nil {
						return err
					}
				}
				return nil
			}

			items, err := s.List(opts)
			if err != nil {
				return err
			}
			if listJSON {
				return printJSON(items)
			}
			if len(items) == 0 {
				fmt.Println(mutedStyle.Render("No items found"))
				return nil
			}

			if listTree {
				tree.Walk(tree.Build(items), func(n *tree.Node, depth int) {
					fmt.Printf("%s%s%s\n", indent(depth+1), itemLine(n.Item), derivedBySuffix(n.Item))
				})
				return nil
			}

			if listGroup != "" {
				for _, g := range store.GroupItems(items, store.GroupBy(listGroup)) {
					fmt.Println(headingStyle.Render(fmt.Sprintf("%s (%d)", g.Key, len(g.Items))))
					if err := printItems(g.Items); err != nil {
						return err
					}
				}
				return nil
			}
			return printItems(items)
		},
	}

	cmd.Flags().StringSliceVarP(&listTypes, "type", "t", nil, "Only list items of these types")
	cmd.Flags().StringSliceVarP(&listFormats, "format", "f", nil, "Only list items in these formats")
	cmd.Flags().BoolVarP(&listArchived, "archived", "a", false, "Include archived items")
	cmd.Flags().StringVar(&listSort, "sort", string(store.SortByModified), "Sort by path, title, created or modified")
	cmd.Flags().BoolVarP(&listReverse, "reverse", "r", true, "Reverse the sort order")
	cmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum number of items to list")
	cmd.Flags().StringVarP(&listGroup, "group", "g", "", "Group by type, format, folder or state")
	cmd.Flags().BoolVar(&listTree, "tree", false, "Show derived items under the items they came from")
	cmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&listAllWorkspaces, "all-workspaces", false, "List items from all registered workspaces")

	return cmd
}

func printItems(items []*models.Item) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, item := range items {
		state := ""
		if item.IsArchived() {
			state = warningStyle.Render("archived")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			pathStyle.Render(item.Path),
			item.DisplayTitle(),
			mutedStyle.Render(humanize.Time(item.Modified)),
			state,
		)
	}
	return w.Flush()
}
