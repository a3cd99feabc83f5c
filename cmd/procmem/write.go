package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var writeCmd = newWriteCmd()

func newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <pid> <address> <hex-bytes>",
		Short: "Write bytes into process memory",
		Long: `Write the given bytes at the given address. Bytes are a hex string,
spaces optional: "deadbeef" and "de ad be ef" are equivalent. The write
fails without touching the target unless the whole span is writable.`,
		Args: cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			addr, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(strings.ReplaceAll(args[2], " ", ""))
			if err != nil {
				return fmt.Errorf("invalid hex bytes: %v", err)
			}
			if len(data) == 0 {
				return fmt.Errorf("no bytes to write")
			}

			proc, err := openTarget(pid)
			if err != nil {
				return err
			}
			defer proc.Close()

			if err := proc.WriteMemory(addr, data); err != nil {
				return err
			}

			fmt.Printf("wrote %d bytes at %s\n", len(data), addr.ToString())
			return nil
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
