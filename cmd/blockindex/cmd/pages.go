package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/output"
)

// pageQuery builds a command that runs fn against an open engine with the
// single argument the user passed.
func pageQuery(opts *globalOptions, use, short, long string,
	fn func(cmd *cobra.Command, e *engine.Engine, out *output.Writer, arg string) error,
) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := opts.graphRoot(nil)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				out = output.NewJSON(cmd.OutOrStdout())
			}
			return opts.withEngine(root, func(e *engine.Engine, _ *config.Config) error {
				return fn(cmd, e, out, args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newURLCmd(opts *globalOptions) *cobra.Command {
	return pageQuery(opts, "url <url>", "List pages that mention a URL",
		"Url lists every page with a block containing exactly the given URL.",
		func(cmd *cobra.Command, e *engine.Engine, out *output.Writer, url string) error {
			conns, err := e.PagesForURL(commandContext(cmd), url)
			if err != nil {
				return err
			}
			return out.Connections(url, conns)
		})
}

func newLinksCmd(opts *globalOptions) *cobra.Command {
	return pageQuery(opts, "links <title>", "List a page's URLs with their surrounding references",
		`Links lists every URL on the page with the given title, together with
the page references on the blocks above it and nested below it.`,
		func(cmd *cobra.Command, e *engine.Engine, out *output.Writer, title string) error {
			links, err := e.LinksForPage(commandContext(cmd), title)
			if err != nil {
				return err
			}
			return out.Links(links)
		})
}

func newRefsCmd(opts *globalOptions) *cobra.Command {
	return pageQuery(opts, "refs <title>", "List a page's references with their surrounding URLs",
		`Refs lists every [[link]] and #tag on the page with the given title,
together with the URLs on the blocks above it and nested below it.`,
		func(cmd *cobra.Command, e *engine.Engine, out *output.Writer, title string) error {
			refs, err := e.ReferencesForPage(commandContext(cmd), title)
			if err != nil {
				return err
			}
			return out.References(refs)
		})
}
