// Command eosmetad wires the namespace, scheduling tree and group drainer
// together for local smoke-testing (spec §2).
/*
 * Copyright (c) 2024, CERN. All rights reserved.
 */
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/cern-eos/eos-sub029/changelog"
	"github.com/cern-eos/eos-sub029/cmn"
	"github.com/cern-eos/eos-sub029/drainer"
	"github.com/cern-eos/eos-sub029/geotree"
	"github.com/cern-eos/eos-sub029/internal/metrics"
	"github.com/cern-eos/eos-sub029/namespace"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "eosmetad",
	Short: "Local smoke test harness for the metadata, scheduling and drain layers",
}

var smokeCmd = &cobra.Command{
	Use:   "smoke DATADIR",
	Short: "Build a namespace, a scheduling tree, and run one drain pass",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := args[0]
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return err
		}

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					glog.Errorf("metrics server stopped: %v", err)
				}
			}()
			defer srv.Close()
		}

		containers, err := changelog.Open(dataDir + "/containers.log")
		if err != nil {
			return err
		}
		defer containers.Close()
		files, err := changelog.Open(dataDir + "/files.log")
		if err != nil {
			return err
		}
		defer files.Close()

		containerSvc := namespace.NewContainerMDSvc(containers)
		fileSvc := namespace.NewFileMDSvc(files)
		if err := containerSvc.Initialize(); err != nil {
			return err
		}
		if err := fileSvc.Initialize(); err != nil {
			return err
		}
		view := namespace.NewView(containerSvc, fileSvc)
		if err := view.Initialize(); err != nil {
			return err
		}

		if _, err := view.CreateContainer("/smoke/data", true); err != nil && !cmn.IsErrKind(err, cmn.KindExists) {
			return err
		}
		fmt.Printf("namespace ready: %d containers, %d files\n", containerSvc.NumContainers(), fileSvc.NumFiles())

		slow := geotree.NewSlowTree()
		slow.Insert("eu::cern::fs1", "localhost", 1, geotree.NodeState{
			Status:     geotree.Available | geotree.Readable | geotree.Writable,
			TotalSpace: 1 << 30,
			FreeSlots:  4,
			FillRatio:  0.1,
		})
		slow.Update()
		cmp := geotree.NewComparator(geotree.ModePlacement, 0.9, 0.01)
		fast := geotree.BuildFast(slow, cmp)
		idx, err := fast.FindFreeSlot(0, false, false, true)
		if err != nil {
			return err
		}
		fmt.Printf("scheduling tree ready: picked leaf %q\n", fast.Nodes[idx].FullTag)

		g := drainer.NewGroupDrainer("smoke-group", drainer.GroupConfig{
			DrainingFSIDs: []uint32{1},
			List:          func(uint32, int) ([]uint64, error) { return nil, nil },
			Transfer:      func(uint64, uint32) error { return nil },
			Backoff:       time.Second,
		})
		if err := g.RunOnce(); err != nil {
			return err
		}
		fmt.Println("drain pass ready")
		return nil
	},
}

func init() {
	smokeCmd.Flags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(smokeCmd)
}
