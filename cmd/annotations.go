package cmd

import "github.com/spf13/cobra"

// Commands carrying this annotation run without an opened workspace.
const skipServiceAnnotation = "kw.skip-service"

// SkipsService reports whether c, or a parent of it, opts out of opening
// the workspace service. Help and shell completion never need it.
func SkipsService(c *cobra.Command) bool {
	switch c.Name() {
	case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	for ; c != nil; c = c.Parent() {
		if c.Annotations[skipServiceAnnotation] == "true" {
			return true
		}
	}
	return false
}
