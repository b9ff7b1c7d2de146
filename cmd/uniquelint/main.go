// SPDX-License-Identifier: Apache-2.0

// Command uniquelint reports dropped results of interning node factories.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"jitopt/internal/verify/uniqueusage"
)

func main() {
	singlechecker.Main(uniqueusage.Analyzer)
}
