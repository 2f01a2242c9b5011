package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/grovetools/kw/pkg/index"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/service"
)

func NewImportCmd(svc **service.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file-or-url>...",
		Short: "Import files or URLs into the workspace",
		Long: `Import local files or URLs as items and select them.

Content that is already in the workspace is not copied again.

Examples:
  kw import notes.md
  kw import https://example.com/article
  kw import talk.mp3 slides.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := (*svc).Import(cmd.Context(), args...)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d %s:\n", len(items), plural(len(items), "item", "items"))
			for _, item := range items {
				fmt.Printf("  %s\n", itemLine(item))
			}
			return nil
		},
	}
	return cmd
}

func NewShowCmd(svc **service.Service) *cobra.Command {
	var (
		showBody bool
		showJSON bool
	)

	cmd := &cobra.Command{
		Use:   "show [item]",
		Short: "Show an item",
		Long:  "Show the metadata and body of an item. Without an argument the first selected item is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			ref := ""
			if len(args) > 0 {
				ref = args[0]
			} else {
				sel, err := s.Current()
				if err != nil {
					return err
				}
				if sel.IsEmpty() {
					return &models.InvalidInputError{Reason: "no item given and nothing is selected"}
				}
				ref = sel[0]
			}

			item, err := s.Show(ref)
			if err != nil {
				return err
			}
			if showJSON {
				return printJSON(item)
			}
			if showBody {
				fmt.Print(item.Body)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Title\t%s\n", item.DisplayTitle())
			fmt.Fprintf(w, "Path\t%s\n", pathStyle.Render(item.Path))
			fmt.Fprintf(w, "Identity\t%s\n", item.Identity)
			fmt.Fprintf(w, "Type\t%s\n", item.Type)
			fmt.Fprintf(w, "Format\t%s\n", item.Format)
			fmt.Fprintf(w, "State\t%s\n", item.State)
			if item.URL != "" {
				fmt.Fprintf(w, "URL\t%s\n", item.URL)
			}
			if item.Description != "" {
				fmt.Fprintf(w, "Description\t%s\n", item.Description)
			}
			fmt.Fprintf(w, "Created\t%s\n", humanize.Time(item.Created))
			fmt.Fprintf(w, "Modified\t%s\n", humanize.Time(item.Modified))
			if db := item.Relations.DerivedBy; db != nil {
				fmt.Fprintf(w, "Derived by\t%s%s\n", db.Action, formatParams(db.Params))
			}
			if len(item.Relations.DerivedFrom) > 0 {
				fmt.Fprintf(w, "Derived from\t%s\n", strings.Join(item.Relations.DerivedFrom, ", "))
			}
			if item.IsStale() {
				fmt.Fprintf(w, "Warning\t%s\n", warningStyle.Render("edited since it was saved"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !item.IsBinary() && item.Body != "" {
				fmt.Println()
				fmt.Print(item.Body)
				if !strings.HasSuffix(item.Body, "\n") {
					fmt.Println()
				}
			} else if item.IsBinary() {
				fmt.Println(mutedStyle.Render(fmt.Sprintf("\n(%s of %s data)", humanize.Bytes(uint64(len(item.Body))), item.Format)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showBody, "body", "b", false, "Print only the body")
	cmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
	return cmd
}

func NewSearchCmd(svc **service.Service) *cobra.Command {
	var (
		searchType     string
		searchArchived bool
		searchLimit    int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search items",
		Long: `Search item titles and text bodies.

Examples:
  kw search "rivers"              # Search the workspace
  kw search "api" -t doc          # Search only documents
  kw search "draft" --archived    # Include archived items`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			opts := &index.SearchOptions{IncludeArchived: searchArchived, Limit: searchLimit}
			if searchType != "" {
				t, ok := models.ParseItemType(searchType)
				if !ok {
					return fmt.Errorf("unknown item type %q", searchType)
				}
				opts.Type = t
			}

			results, err := (*svc).Search(query, opts)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println(mutedStyle.Render(fmt.Sprintf("No results for %q", query)))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, r := range results {
				fmt.Fprintf(w, "  %s\t%s\t%s\n", pathStyle.Render(r.Path), r.Title, mutedStyle.Render(humanize.Time(r.Modified)))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&searchType, "type", "t", "", "Filter by item type")
	cmd.Flags().BoolVar(&searchArchived, "archived", false, "Include archived items")
	cmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum number of results")
	return cmd
}

func NewReindexCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the item index from the workspace files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := (*svc).Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d items", report.Indexed)
			if report.Duplicates > 0 {
				fmt.Printf(", %d with duplicate content", report.Duplicates)
			}
			fmt.Println()
			for path, err := range report.Errors {
				fmt.Printf("  %s %s: %v\n", errorStyle.Render("✗"), path, err)
			}
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
