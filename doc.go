// Package stepper drives stepper motors through a small serial controller.
//
// One controller serves up to three motors over a single serial link. The
// host sends fixed-length binary frames and never reads anything back, so
// motion is fire-and-forget and readiness is estimated from the step count
// and step delay.
//
// # Installation
//
//	go install github.com/gwillem/stepper/cmd/stepper@latest
//
// # Usage
//
// Describe your motors first:
//
//	stepper setup
//
// Then move one:
//
//	stepper rotate --motor pan --steps 200 --direction right
//
// or run the program stored in stepper.json:
//
//	stepper run
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/stepper: CLI with setup, ports, rotate, spin and run commands
//   - pkg/stepper: Connection pool, motor handles and configuration
//   - pkg/protocol: Command frame encoding
//   - pkg/program: Scripted motion sequences
//   - pkg/logging: slog logger construction
package stepper
