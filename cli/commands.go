package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nexlayer.io/mcp/mcp"
	"nexlayer.io/mcp/tools"
	"nexlayer.io/mcp/version"
)

func init() {
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(toolsCmd)
	versionCmd.Flags().Bool("deps", false, "also list module dependencies")
	toolsCmd.Flags().Bool("json", false, "print the tools/list payload as JSON")
}

var versionCmd = &cobra.Command{
	Use:   "version [module...]",
	Short: "Print the server version",
	Long: `Print the server version.

With module paths as arguments, print the linked version of each module instead,
for example: nexlayer-mcp version github.com/redis/go-redis/v9`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) > 0 {
			for _, path := range args {
				dep := version.GetDependency(path)
				if dep == nil {
					fmt.Fprintf(out, "%s not linked\n", path)
					continue
				}
				line := dep.Path + " " + dep.Version
				if dep.Replace != "" {
					line += " => " + dep.Replace
				}
				fmt.Fprintln(out, line)
			}
			return nil
		}

		info := version.GetBuildInfo()
		fmt.Fprintf(out, "nexlayer-mcp %s (%s)\n", version.GetVersion(), info.GoVersion)

		deps, _ := cmd.Flags().GetBool("deps")
		if !deps {
			return nil
		}
		for _, dep := range info.Dependencies {
			fmt.Fprintf(out, "  %s %s\n", dep.Path, dep.Version)
		}
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the MCP tools this server exposes",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := mcp.NewRegistry()
		if err := tools.Register(reg, tools.Deps{}); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(listing(reg))
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTRACE\tTITLE")
		for _, tool := range reg.List() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", tool.Name, tool.Trace, tool.Title)
		}
		return w.Flush()
	},
}

type toolListing struct {
	Name        string         `json:"name"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	Trace       string         `json:"trace"`
	InputSchema map[string]any `json:"inputSchema"`
}

func listing(reg *mcp.Registry) []toolListing {
	out := make([]toolListing, 0, reg.Len())
	for _, tool := range reg.List() {
		out = append(out, toolListing{
			Name:        tool.Name,
			Title:       tool.Title,
			Description: tool.Description,
			Trace:       tool.Trace.String(),
			InputSchema: tool.InputSchema,
		})
	}
	return out
}
