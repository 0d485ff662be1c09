package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/local/shasdl/internal/shas"
)

func newListCmd(a *app) *cobra.Command {
	var masechta, by string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List masechtos, or the dapim and amudim of one masechta",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if masechta == "" {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tMASECHTA\tAMUDIM\tLAST")
				for i, it := range cat.Items() {
					addrs := it.Addresses()
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i+1, it.Name, it.TotalPages, addrs[len(addrs)-1])
				}
				return tw.Flush()
			}

			it, err := cat.Lookup(masechta)
			if err != nil {
				return err
			}
			addressing, err := shas.ParseAddressing(by)
			if err != nil {
				return err
			}
			var vals []string
			if addressing == shas.BySide {
				for _, ad := range it.Addresses() {
					vals = append(vals, ad.String())
				}
			} else {
				for _, l := range it.Leaves() {
					vals = append(vals, fmt.Sprint(l))
				}
			}
			fmt.Fprintf(out, "%s (%d amudim):\n%s\n", it.Name, it.TotalPages, strings.Join(vals, " "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&masechta, "masechta", "m", "", "list the addresses of this masechta")
	cmd.Flags().StringVar(&by, "by", "daf", "daf or amud")
	return cmd
}
