// SPDX-License-Identifier: MPL-2.0

// harbormaster provisions self-hosted services as containers, idempotently.
package main

import cmd "github.com/invowk/harbormaster/cmd/harbormaster"

func main() {
	cmd.Execute()
}
