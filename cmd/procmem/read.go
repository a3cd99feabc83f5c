package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"procmem/hexdump"
	"procmem/process"
)

var readCmd = newReadCmd()
var readRawFlag bool
var readMaxLinesFlag int

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <pid> <address> [size]",
		Short: "Read process memory and print a hex dump",
		Long: `Read size bytes at the given address and print a hex dump annotated
with pointers that land in mapped regions. Addresses accept decimal or
0x-prefixed hex. The default size is 256 bytes.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(_ *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			addr, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			size := process.ProcessMemorySize(256)
			if len(args) == 3 {
				size, err = parseSize(args[2])
				if err != nil {
					return err
				}
			}

			proc, err := openTarget(pid)
			if err != nil {
				return err
			}
			defer proc.Close()

			data, err := proc.ReadMemory(addr, size)
			if err != nil {
				return err
			}

			if readRawFlag {
				fmt.Printf("%x\n", data)
				return nil
			}

			mm, err := proc.GetMemoryMap()
			if err != nil {
				return err
			}

			options := hexdump.DefaultOptions()
			options.StartOffset = uint64(addr)
			options.OffsetWidth = 12
			options.ShowPointers = true
			options.MemoryMap = mm
			if conf.DumpBytesPerLine > 0 {
				options.BytesPerLine = conf.DumpBytesPerLine
			}
			options.MaxLines = readMaxLinesFlag
			if options.MaxLines == 0 {
				options.MaxLines = conf.DumpMaxLines
			}

			fmt.Print(hexdump.Dump(data, options))
			return nil
		},
	}
	cmd.Flags().BoolVar(&readRawFlag, "raw", false, "print bytes as a plain hex string")
	cmd.Flags().IntVar(&readMaxLinesFlag, "max-lines", 0, "cap the number of dump lines, 0 for no limit")

	return cmd
}

func init() {
	rootCmd.AddCommand(readCmd)
}
