// SPDX-License-Identifier: Apache-2.0
//
// nabuadapter - NABU Network Adapter emulator
//
// Emulates the serial-attached NABU Network Adapter: a byte-oriented
// command dispatcher that answers channel configuration and file-request
// commands over RS-232, serving packets from a local cycle directory or
// an HTTP origin on cache miss.
package main

import (
	"fmt"
	"os"

	"github.com/chrislenderman/nabuadapter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
