// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/adrcs/ip400/internal/buildinfo"
	"github.com/adrcs/ip400/internal/cmd"
)

func main() {
	if err := cmd.NewCommand(buildinfo.Version, buildinfo.GitCommit).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
