// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/tliron/glsp/server"

	"jitopt/internal/lsp"
)

const lsName = "jitopt"

var version = "0.1.0"

func main() {
	verbosity := flag.Int("verbosity", 1, "log verbosity")
	logFile := flag.String("log", "", "log file (default stderr)")
	flag.Parse()

	var path *string
	if *logFile != "" {
		path = logFile
	}
	commonlog.Configure(*verbosity, path)
	log := commonlog.GetLogger("jitopt.lsp")

	handler := lsp.NewHandler(version)
	s := server.NewServer(handler.Protocol(), lsName, false)

	log.Info("starting jitopt language server")
	if err := s.RunStdio(); err != nil {
		log.Errorf("language server stopped: %s", err)
		os.Exit(1)
	}
}
