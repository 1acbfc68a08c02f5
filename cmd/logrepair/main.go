// Command logrepair scans a changelog file, keeps every well-formed
// record, and writes them in order into a fresh output file (spec §6).
/*
 * Copyright (c) 2024, CERN. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/cern-eos/eos-sub029/changelog"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitFatalIO = 2
)

func main() {
	code := run()
	glog.Flush()
	os.Exit(code)
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if _, ok := err.(usageError); ok {
			return exitUsage
		}
		return exitFatalIO
	}
	return exitOK
}

type usageError struct{ error }

var rootCmd = &cobra.Command{
	Use:   "logrepair SRC DST",
	Short: "Repair a changelog file by dropping corrupt records",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return usageError{fmt.Errorf("expected SRC and DST arguments")}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		src, dst := args[0], args[1]

		feedback := func(offset int64, healthy bool, reason string) {
			if !healthy && verbose {
				fmt.Printf("discarded record at offset %d: %s\n", offset, reason)
			}
		}

		stats, err := changelog.Repair(src, dst, feedback)
		if err != nil {
			return err
		}

		fmt.Printf("scanned=%d healthy=%d bad_magic=%d bad_size=%d bad_checksum=%d bytes_accepted=%d bytes_discarded=%d\n",
			stats.Scanned, stats.Healthy, stats.BadMagic, stats.BadSize, stats.BadChecksum,
			stats.BytesAccepted, stats.BytesDiscared)
		return nil
	},
}

func init() {
	rootCmd.Flags().BoolP("verbose", "v", false, "print a line for every discarded record")
}
