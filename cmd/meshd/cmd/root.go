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

/*
Package cmd implements meshd's command-line surface, grounded on
cmd/ptpcheck/cmd's RootCmd-plus-init()-registered-subcommands idiom.
*/
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is meshd's entry point, exported so it can be extended without
// touching core functionality (mirrors ptpcheck.RootCmd).
var RootCmd = &cobra.Command{
	Use:   "meshd",
	Short: "secure duty-cycled wireless mesh link-layer engine",
}

var rootVerbose bool

func init() {
	RootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "verbose (debug) logging")
}

// configureVerbosity applies rootVerbose, needs calling by any subcommand
// that talks to the engine (mirrors ptpcheck.ConfigureVerbosity).
func configureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if rootVerbose {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
