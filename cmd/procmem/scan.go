package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"procmem/process"
	"procmem/scanner"
)

var scanCmd = newScanCmd()

var scanPatternFlag string
var scanTypeFlag string
var scanValueFlag string
var scanWritableFlag bool
var scanAnonFlag bool
var scanWorkersFlag int
var scanAlignFlag uint
var scanWindowFlag uint
var scanLimitFlag int
var scanNarrowFlag bool

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <pid>",
		Short: "Scan process memory for a pattern or typed value",
		Long: `Scan the mapped regions of a process for a byte pattern or a typed
value. Patterns are hex bytes with ?? wildcards, e.g. "89 50 ?? 0a".
Typed values take --type (u8..u64, i8..i64, f32, f64) and --value.

With --narrow the command keeps the session open and reads narrowing
commands from stdin until the result set is small enough:

  changed          keep matches whose value changed since the last pass
  unchanged        keep matches whose value did not change
  eq|gt|lt <v>     keep matches comparing against a new literal
  list [n]         print the first n matches (default 20)
  quit             close the session`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			if (scanPatternFlag == "") == (scanValueFlag == "") {
				return fmt.Errorf("exactly one of --pattern and --value is required")
			}

			proc, err := openTarget(pid)
			if err != nil {
				return err
			}
			defer proc.Close()

			s := newScanner()
			filter := scanner.Filter{
				WritableOnly:  scanWritableFlag || conf.ScanWritableOnly,
				AnonymousOnly: scanAnonFlag,
			}

			var result *scanner.Result
			if scanPatternFlag != "" {
				aob, err := process.ParseAOB(scanPatternFlag)
				if err != nil {
					return err
				}
				result, err = s.ScanPatternParallel(proc, aob, filter, uint(scanWorkers()))
				if err != nil {
					return err
				}
			} else {
				value, err := parseValue(scanTypeFlag, scanValueFlag)
				if err != nil {
					return err
				}
				result, err = s.ScanValue(proc, value, scanner.CompareEqual, filter)
				if err != nil {
					return err
				}
			}

			printResult(result)

			if scanNarrowFlag {
				return narrowLoop(proc, s, result)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&scanPatternFlag, "pattern", "p", "", "byte pattern with ?? wildcards")
	cmd.Flags().StringVarP(&scanTypeFlag, "type", "t", "u32", "value type: u8..u64, i8..i64, f32, f64")
	cmd.Flags().StringVarP(&scanValueFlag, "value", "v", "", "typed value to scan for")
	cmd.Flags().BoolVarP(&scanWritableFlag, "writable", "w", false, "only scan writable regions")
	cmd.Flags().BoolVar(&scanAnonFlag, "anon", false, "only scan anonymous regions (heap, stack, mmap)")
	cmd.Flags().IntVar(&scanWorkersFlag, "workers", 0, "concurrent region readers for pattern scans")
	cmd.Flags().UintVar(&scanAlignFlag, "align", 0, "restrict candidates to multiples of this alignment")
	cmd.Flags().UintVar(&scanWindowFlag, "window", 0, "streaming read window size in bytes")
	cmd.Flags().IntVar(&scanLimitFlag, "limit", 20, "matches to print per pass")
	cmd.Flags().BoolVarP(&scanNarrowFlag, "narrow", "n", false, "keep the session open and narrow interactively")

	return cmd
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func newScanner() *scanner.Scanner {
	var options []scanner.Option
	if scanWindowFlag > 0 {
		options = append(options, scanner.WithWindowSize(scanWindowFlag))
	} else if conf.ScanWindowSize != nil && *conf.ScanWindowSize > 0 {
		options = append(options, scanner.WithWindowSize(*conf.ScanWindowSize))
	}
	if scanAlignFlag > 0 {
		options = append(options, scanner.WithAlignment(scanAlignFlag))
	} else if conf.ScanAlignment != nil && *conf.ScanAlignment > 0 {
		options = append(options, scanner.WithAlignment(*conf.ScanAlignment))
	}
	return scanner.New(options...)
}

func scanWorkers() int {
	if scanWorkersFlag > 0 {
		return scanWorkersFlag
	}
	if conf.ScanWorkers > 0 {
		return conf.ScanWorkers
	}
	return 1
}

var valueTypes = map[string]scanner.ValueType{
	"u8":  scanner.ValueUint8,
	"u16": scanner.ValueUint16,
	"u32": scanner.ValueUint32,
	"u64": scanner.ValueUint64,
	"i8":  scanner.ValueInt8,
	"i16": scanner.ValueInt16,
	"i32": scanner.ValueInt32,
	"i64": scanner.ValueInt64,
	"f32": scanner.ValueFloat32,
	"f64": scanner.ValueFloat64,
}

func parseValue(typeName, literal string) (scanner.Value, error) {
	t, ok := valueTypes[typeName]
	if !ok {
		return scanner.Value{}, fmt.Errorf("unknown value type %q", typeName)
	}

	switch t {
	case scanner.ValueFloat32:
		f, err := strconv.ParseFloat(literal, 32)
		if err != nil {
			return scanner.Value{}, fmt.Errorf("invalid f32 value %q", literal)
		}
		return scanner.Float32Value(float32(f)), nil
	case scanner.ValueFloat64:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return scanner.Value{}, fmt.Errorf("invalid f64 value %q", literal)
		}
		return scanner.Float64Value(f), nil
	case scanner.ValueInt8, scanner.ValueInt16, scanner.ValueInt32, scanner.ValueInt64:
		n, err := strconv.ParseInt(literal, 0, t.Size()*8)
		if err != nil {
			return scanner.Value{}, fmt.Errorf("invalid %s value %q", typeName, literal)
		}
		switch t {
		case scanner.ValueInt8:
			return scanner.Int8Value(int8(n)), nil
		case scanner.ValueInt16:
			return scanner.Int16Value(int16(n)), nil
		case scanner.ValueInt32:
			return scanner.Int32Value(int32(n)), nil
		default:
			return scanner.Int64Value(n), nil
		}
	default:
		n, err := strconv.ParseUint(literal, 0, t.Size()*8)
		if err != nil {
			return scanner.Value{}, fmt.Errorf("invalid %s value %q", typeName, literal)
		}
		switch t {
		case scanner.ValueUint8:
			return scanner.Uint8Value(uint8(n)), nil
		case scanner.ValueUint16:
			return scanner.Uint16Value(uint16(n)), nil
		case scanner.ValueUint32:
			return scanner.Uint32Value(uint32(n)), nil
		default:
			return scanner.Uint64Value(n), nil
		}
	}
}

func printResult(result *scanner.Result) {
	fmt.Printf("%d matches", len(result.Matches))
	if result.SkippedRegions > 0 {
		fmt.Printf(" (%d regions skipped)", result.SkippedRegions)
	}
	fmt.Println()

	printMatches(result, scanLimitFlag)
}

func printMatches(result *scanner.Result, limit int) {
	if limit <= 0 {
		limit = 20
	}
	for i, m := range result.Matches {
		if i >= limit {
			fmt.Printf("... %d more\n", len(result.Matches)-i)
			break
		}
		fmt.Printf("  %s  %x\n", m.Address.ToString(), m.Value)
	}
}

// narrowLoop reads narrowing commands from stdin and rescans the match
// set until the user quits. The session stays open so prior values stay
// comparable.
func narrowLoop(proc process.Process, s *scanner.Scanner, result *scanner.Result) error {
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("narrow[%d]> ", len(result.Matches))
		if !in.Scan() {
			return in.Err()
		}
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}

		var next *scanner.Result
		var err error
		switch fields[0] {
		case "quit", "q", "exit":
			return nil
		case "list", "l":
			limit := scanLimitFlag
			if len(fields) > 1 {
				limit, _ = strconv.Atoi(fields[1])
			}
			printMatches(result, limit)
			continue
		case "changed":
			next, err = s.Rescan(proc, result, scanner.CompareChanged)
		case "unchanged":
			next, err = s.Rescan(proc, result, scanner.CompareUnchanged)
		case "eq", "gt", "lt":
			if len(fields) != 2 {
				fmt.Printf("usage: %s <value>\n", fields[0])
				continue
			}
			var value scanner.Value
			value, err = parseValue(scanTypeFlag, fields[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			mode := scanner.CompareEqual
			switch fields[0] {
			case "gt":
				mode = scanner.CompareGreater
			case "lt":
				mode = scanner.CompareLess
			}
			next, err = s.RescanValue(proc, result, value, mode)
		default:
			fmt.Printf("unknown command %q\n", fields[0])
			continue
		}

		if err != nil {
			if errors.Is(err, process.ErrProcessGone) || errors.Is(err, process.ErrNotAttached) {
				return err
			}
			fmt.Println(err)
			continue
		}
		result = next
		printResult(result)
	}
}
