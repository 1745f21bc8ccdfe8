/*
 * Copyright 2024 Qualcomm Innovation Center, Inc. and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	// Register the Adreno storage scope classifier.
	_ "github.com/lhez/qualcomm/adreno"
	"github.com/lhez/qualcomm/expr"
	"github.com/lhez/qualcomm/memplan"
	"github.com/lhez/qualcomm/y"
)

var graphFile string
var targetFlags []string
var matchRange int64
var verbose bool

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan storage slots for a graph JSON file.",
	Long: `
Plan reads a dataflow graph from a JSON file, runs the memory planner and
prints one row per node: the assigned storage slot ids, device types and
storage scopes, followed by a footprint summary and a plan fingerprint.

Targets are given as <device-type>=<kind>[.<device>], for example:

	planmem plan -g net.json --target 4=opencl.adreno
`,
	RunE: doPlan,
}

func init() {
	RootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVarP(&graphFile, "graph", "g", "", "Graph JSON file to plan.")
	planCmd.Flags().StringArrayVarP(&targetFlags, "target", "t", nil,
		"Target per device type, as <device-type>=<kind>[.<device>].")
	planCmd.Flags().Int64VarP(&matchRange, "match-range", "r", 16,
		"Linear free list match range; 0 disables linear reuse.")
	planCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log planner decisions.")
}

func doPlan(cmd *cobra.Command, args []string) error {
	if graphFile == "" {
		return errors.New("--graph is required")
	}
	data, err := os.ReadFile(graphFile)
	if err != nil {
		return err
	}
	graph, err := expr.ParseGraph(data)
	if err != nil {
		return err
	}
	targets, err := parseTargets(targetFlags)
	if err != nil {
		return err
	}

	opt := memplan.DefaultOptions
	opt.LinearMatchRange = matchRange
	if !verbose {
		opt.Logger = y.NopLogger
	}
	plan, err := memplan.NewPlanner(opt).Plan(graph.Fn, graph.Devices, targets)
	if err != nil {
		return err
	}

	var order []expr.Node
	expr.PostOrder(graph.Fn, func(n expr.Node) {
		order = append(order, n)
	})

	tw := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tSLOTS\tDEVICES\tSCOPES")
	for _, n := range order {
		ns, ok := plan.Storage[n]
		if !ok || len(ns.SlotIDs) == 0 {
			continue
		}
		name := graph.Names[n]
		if name == "" {
			name = fmt.Sprintf("%T", n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			name, joinInt64s(ns.SlotIDs), joinInts(ns.DeviceTypes),
			strings.Join(ns.Scopes, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := plan.Stats
	fmt.Printf("\nlinear: %d slots, %s\n", s.LinearSlots, humanize.IBytes(uint64(s.LinearBytes)))
	fmt.Printf("texture: %d blocks, %d elements\n", s.TextureSlots, s.TextureArea)
	fmt.Printf("reused: %d\n", s.ReusedSlots)
	fmt.Printf("fingerprint: %016x\n", plan.Fingerprint(order))
	return nil
}

func parseTargets(flags []string) (memplan.TargetMap, error) {
	targets := make(memplan.TargetMap)
	for _, f := range flags {
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			return nil, errors.Errorf("invalid target %q, want <device-type>=<kind>[.<device>]", f)
		}
		devType, err := strconv.Atoi(f[:eq])
		if err != nil {
			return nil, errors.Errorf("invalid device type in target %q", f)
		}
		kind, device := f[eq+1:], ""
		if dot := strings.IndexByte(kind, '.'); dot >= 0 {
			kind, device = kind[:dot], kind[dot+1:]
		}
		if kind == "" {
			return nil, errors.Errorf("empty backend kind in target %q", f)
		}
		targets[devType] = memplan.Target{Kind: kind, Device: device}
	}
	return targets, nil
}

func joinInt64s(vals []int64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
