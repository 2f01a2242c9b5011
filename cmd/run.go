package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/grovetools/kw/pkg/action"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/service"
)

func NewRunCmd(svc **service.Service) *cobra.Command {
	var (
		params        map[string]string
		rerun         bool
		keepSelection bool
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "run <action> [items...]",
		Short: "Run an action",
		Long: `Run an action on the given items, or on the current selection.

Results are cached by action, parameters and input content, so running the
same action on unchanged inputs returns the stored outputs. The outputs
become the new selection unless --keep-selection is set.

Examples:
  kw run strip_html                          # Run on the selection
  kw run break_into_paragraphs notes.md -P sentences=3
  kw run concat a.md b.md                    # Combine items in order
  kw run transcribe talk.mp3 --rerun         # Ignore the cache`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []action.RunOption
			if rerun {
				opts = append(opts, action.WithRerun())
			}
			if keepSelection {
				opts = append(opts, action.WithoutSelection())
			}

			report, err := (*svc).Run(cmd.Context(), args[0], args[1:], params, opts...)
			if report != nil {
				if jsonOutput {
					if jerr := printJSON(report); jerr != nil {
						return jerr
					}
				} else {
					printReport(os.Stdout, report)
				}
			}
			var execErr *models.ActionExecutionError
			if errors.As(err, &execErr) && report != nil {
				return fmt.Errorf("%s failed on every input", execErr.Action)
			}
			return err
		},
	}

	cmd.Flags().StringToStringVarP(&params, "param", "P", nil, "Action parameter as name=value (repeatable)")
	cmd.Flags().BoolVar(&rerun, "rerun", false, "Recompute even when a cached result exists")
	cmd.Flags().BoolVar(&keepSelection, "keep-selection", false, "Do not select the outputs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the run report in JSON format")

	return cmd
}

func NewSuggestCmd(svc **service.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest [items...]",
		Short: "List actions applicable to items",
		Long:  "List the actions whose preconditions every given item satisfies. Without arguments the current selection is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := (*svc).Suggest(args...)
			if err != nil {
				return err
			}
			if len(specs) == 0 {
				fmt.Println(mutedStyle.Render("No applicable actions"))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, spec := range specs {
				fmt.Fprintf(w, "  %s\t%s\n", headingStyle.Render(spec.Name), spec.Description)
			}
			return w.Flush()
		},
	}
	return cmd
}

func NewActionsCmd(svc **service.Service) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "actions [name]",
		Short: "List registered actions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := (*svc).Actions
			specs := reg.All()
			if len(args) > 0 {
				spec, err := reg.Get(args[0])
				if err != nil {
					return err
				}
				specs = []*action.Spec{spec}
			}

			if jsonOutput {
				type paramJSON struct {
					Name        string   `json:"name"`
					Description string   `json:"description"`
					Default     string   `json:"default,omitempty"`
					Valid       []string `json:"valid,omitempty"`
				}
				type specJSON struct {
					Name          string      `json:"name"`
					Description   string      `json:"description"`
					Arity         string      `json:"arity"`
					Preconditions []string    `json:"preconditions"`
					Params        []paramJSON `json:"params,omitempty"`
				}
				out := make([]specJSON, 0, len(specs))
				for _, spec := range specs {
					sj := specJSON{
						Name:          spec.Name,
						Description:   spec.Description,
						Arity:         spec.Arity.String(),
						Preconditions: spec.Preconditions,
					}
					for _, p := range spec.Params {
						sj.Params = append(sj.Params, paramJSON(p))
					}
					out = append(out, sj)
				}
				return printJSON(out)
			}

			for i, spec := range specs {
				if i > 0 {
					fmt.Println()
				}
				fmt.Printf("%s %s\n", headingStyle.Render(spec.Name), mutedStyle.Render("("+spec.Arity.String()+")"))
				fmt.Printf("%s%s\n", indent(1), spec.Description)
				if len(spec.Preconditions) > 0 {
					fmt.Printf("%s%s %s\n", indent(1), mutedStyle.Render("requires:"), strings.Join(spec.Preconditions, ", "))
				}
				for _, p := range spec.Params {
					def := ""
					if p.Default != "" {
						def = mutedStyle.Render(fmt.Sprintf(" [default: %s]", p.Default))
					}
					fmt.Printf("%s-P %s=...  %s%s\n", indent(1), p.Name, p.FullDescription(), def)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func NewLineageCmd(svc **service.Service) *cobra.Command {
	var derived bool

	cmd := &cobra.Command{
		Use:   "lineage [item]",
		Short: "Show where an item came from",
		Long: `Show the derivation chain of an item: the actions and inputs that produced
it, back to imported content. With --derived, show the items produced
from it instead.`,
		Args: cobra.MaximumNArgs(1),
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

			if derived {
				items, err := s.Derived(ref)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Println(mutedStyle.Render("Nothing has been derived from this item"))
					return nil
				}
				for _, item := range items {
					fmt.Printf("  %s%s\n", itemLine(item), derivedBySuffix(item))
				}
				return nil
			}

			chain, err := s.Lineage(ref)
			if err != nil {
				return err
			}
			fmt.Printf("%s%s\n", itemLine(chain.Item), derivedBySuffix(chain.Item))
			for _, link := range chain.Ancestors {
				fmt.Printf("%s└ %s%s\n", indent(link.Depth), itemLine(link.Item), derivedBySuffix(link.Item))
			}
			for _, id := range chain.Broken {
				fmt.Printf("  %s %s\n", warningStyle.Render("missing ancestor"), id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&derived, "derived", false, "Show items derived from the item")
	return cmd
}

func NewParamsCmd(svc **service.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Manage workspace action parameters",
		Long: `Workspace parameters apply to every action that declares them, unless a
value is passed explicitly with 'kw run -P'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := (*svc).Params()
			if err != nil {
				return err
			}
			if len(params) == 0 {
				fmt.Println(mutedStyle.Render("No workspace parameters set"))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, k := range params.Keys() {
				fmt.Fprintf(w, "  %s\t%s\n", k, params[k])
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set a workspace parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[1] == "" {
				return &models.InvalidInputError{Reason: "value must not be empty; use 'kw params unset'"}
			}
			if _, err := (*svc).SetParam(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s %s=%s\n", successStyle.Render("✓"), args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unset <name>",
		Short: "Remove a workspace parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := (*svc).SetParam(args[0], ""); err != nil {
				return err
			}
			fmt.Printf("%s unset %s\n", successStyle.Render("✓"), args[0])
			return nil
		},
	})

	return cmd
}

func derivedBySuffix(item *models.Item) string {
	db := item.Relations.DerivedBy
	if db == nil {
		return ""
	}
	return mutedStyle.Render(fmt.Sprintf("  ← %s%s", db.Action, formatParams(db.Params)))
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
