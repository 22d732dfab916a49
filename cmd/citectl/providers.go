package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixir/citation-discovery-service/internal/papersources"
)

func newProvidersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the configured providers and what they support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}

			caps := make([]papersources.Capabilities, 0)
			for _, a := range svc.Registry.All() {
				caps = append(caps, papersources.Describe(a))
			}
			if c.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), caps)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tNAME\tIDENTIFIERS\tAUTHOR+YEAR\tTOPIC\tEXTRAS")
			for _, cp := range caps {
				ids := make([]string, len(cp.Identifiers))
				for i, id := range cp.Identifiers {
					ids[i] = string(id)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					cp.Source, cp.Name, orDash(strings.Join(ids, ",")),
					yesNo(cp.AuthorYear), yesNo(cp.Topic), orDash(extras(cp)))
			}
			return tw.Flush()
		},
	}
}

func extras(cp papersources.Capabilities) string {
	var out []string
	if cp.Graph {
		out = append(out, "citations")
	}
	if cp.Categories {
		out = append(out, "categories")
	}
	return strings.Join(out, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
