// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package indicator drives a hardware alarm line that latches high
// when the arbiter leaves tracking mode.
package indicator

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
)

// GPIO raises a pin on the fallback transition. The pin is driven low
// at startup and stays high once raised; only a restart clears it.
type GPIO struct {
	pin gpio.PinIO
}

// NewGPIO initializes the periph host and claims the named pin.
func NewGPIO(pinName string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("indicator: periph host init: %w", err)
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("indicator: pin %q not found", pinName)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("indicator: driving %q low: %w", pinName, err)
	}
	return &GPIO{pin: pin}, nil
}

// Alert implements arbiter.Sink. Individual alerts do not touch the
// pin; only the mode transition does.
func (g *GPIO) Alert(arbiter.Alert) {}

// ModeChanged implements arbiter.Sink.
func (g *GPIO) ModeChanged(mode arbiter.Mode) {
	if mode != arbiter.ModeFallback {
		return
	}
	if err := g.pin.Out(gpio.High); err != nil {
		logging.Error().Err(err).Str("pin", g.pin.Name()).Msg("raising alarm pin")
	}
}

// Noop satisfies arbiter.Sink on hosts without GPIO.
type Noop struct{}

func (Noop) Alert(arbiter.Alert)           {}
func (Noop) ModeChanged(mode arbiter.Mode) {}
