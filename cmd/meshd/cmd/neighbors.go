/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/meshsec/llsec/admin"
)

var neighborsAddr string

func init() {
	cmd := &cobra.Command{
		Use:   "neighbors",
		Short: "list the neighbor table of a running meshd",
		RunE:  runNeighbors,
	}
	cmd.Flags().StringVar(&neighborsAddr, "addr", "127.0.0.1:9100", "address of a running meshd's admin server")
	RootCmd.AddCommand(cmd)
}

func runNeighbors(_ *cobra.Command, _ []string) error {
	configureVerbosity()

	views, err := admin.FetchNeighbors(neighborsAddr)
	if err != nil {
		return fmt.Errorf("fetching neighbors from %s: %w", neighborsAddr, err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(20)
	table.SetHeader([]string{"addr", "local index", "status", "phase locked", "expiration"})
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, v := range views {
		status := v.Status
		if v.Status == "permanent" {
			status = green(v.Status)
		} else if v.Status != "empty" {
			status = yellow(v.Status)
		}
		table.Append([]string{
			v.Addr,
			fmt.Sprintf("%d", v.LocalIndex),
			status,
			fmt.Sprintf("%v", v.PhaseKnown),
			v.Expiration,
		})
	}
	table.Render()
	return nil
}
