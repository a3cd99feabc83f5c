// Command procmem inspects and edits the memory of a running process.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"procmem/config"
	"procmem/native"
	"procmem/process"
)

var conf *config.Config

var attachFlag bool
var suspendFlag bool

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "procmem",
		Short: "Process memory inspection tool",
		Long: `Procmem opens a session against a running process and lets you list its
memory regions, read and write memory, and scan for byte patterns or
typed values with iterative narrowing.

Most commands take a PID as their first argument. Reading another user's
process generally requires elevated privileges.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&attachFlag, "attach", "a", false, "attach with the platform debug primitive (stops the target)")
	cmd.PersistentFlags().BoolVarP(&suspendFlag, "suspend", "s", false, "suspend the target for the duration of the command")

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func main() {
	conf = config.LoadConfig()
	Execute()
}

// openTarget opens a session against pid using the command line flags,
// falling back to the config file defaults.
func openTarget(pid process.ProcessID) (process.Process, error) {
	mode := process.OpenMode{
		AttachRequired: attachFlag || conf.Attach,
		SuspendTarget:  suspendFlag || conf.Suspend,
	}
	return native.Open(pid, mode)
}

func parsePID(arg string) (process.ProcessID, error) {
	pid, err := strconv.Atoi(arg)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", arg)
	}
	return process.ProcessID(pid), nil
}

// parseAddress accepts decimal or 0x-prefixed hex.
func parseAddress(arg string) (process.ProcessMemoryAddress, error) {
	addr, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", arg)
	}
	return process.ProcessMemoryAddress(addr), nil
}

func parseSize(arg string) (process.ProcessMemorySize, error) {
	size, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", arg)
	}
	return process.ProcessMemorySize(size), nil
}
