// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/gnss_sentinel/internal/app"
)

func main() {
	configPath := flag.String("config", "sentinel.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := app.RunSentinel(*configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
