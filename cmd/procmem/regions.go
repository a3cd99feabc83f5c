package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var regionsCmd = newRegionsCmd()
var regionsWritableFlag bool

func newRegionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions <pid>",
		Short: "List the memory regions of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}

			proc, err := openTarget(pid)
			if err != nil {
				return err
			}
			defer proc.Close()

			mm, err := proc.GetMemoryMap()
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Address", "End", "Size", "Perms", "Backing"})
			table.SetBorder(false)
			table.SetCenterSeparator("")
			table.SetColumnAlignment([]int{
				tablewriter.ALIGN_RIGHT,
				tablewriter.ALIGN_RIGHT,
				tablewriter.ALIGN_RIGHT,
				tablewriter.ALIGN_CENTER,
				tablewriter.ALIGN_LEFT,
			})

			shown := 0
			for _, item := range mm {
				if regionsWritableFlag && !item.IsWritable() {
					continue
				}
				table.Append([]string{
					fmt.Sprintf("0x%x", item.Address),
					fmt.Sprintf("0x%x", item.End()),
					fmt.Sprintf("%d", item.Size),
					item.Perms.String(),
					item.Backing,
				})
				shown++
			}
			table.Render()
			fmt.Printf("\n%d regions\n", shown)

			return nil
		},
	}
	cmd.Flags().BoolVarP(&regionsWritableFlag, "writable", "w", false, "only show writable regions")

	return cmd
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}
