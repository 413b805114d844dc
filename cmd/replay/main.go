// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/gnss_sentinel/internal/app"
	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
)

func main() {
	configPath := flag.String("config", "sentinel.yaml", "path to the YAML configuration file")
	logPath := flag.String("log", "", "recorded NMEA log to replay")
	delay := flag.Duration("delay", 0, "pacing between sentences, 0 replays at full speed")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("replay: -log is required")
	}

	mode, err := app.RunReplay(*configPath, *logPath, *delay)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if mode == arbiter.ModeFallback {
		os.Exit(2)
	}
}
