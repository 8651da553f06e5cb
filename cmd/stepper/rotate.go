package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/stepper/pkg/stepper"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type RotateCommand struct {
	MotorFlags

	Direction string `short:"d" long:"direction" default:"left" choice:"left" choice:"right" description:"Rotation direction"`
	Steps     int32  `short:"s" long:"steps" required:"true" description:"Number of steps"`
	Delay     int32  `long:"delay" description:"Step delay in microseconds (default from config, else 1000)"`
	NoWait    bool   `long:"no-wait" description:"Return as soon as the command is sent"`
}

// openMotor creates the motor and applies the configured or requested delay.
func openMotor(pool *stepper.Pool, f MotorFlags, delay int32) (*stepper.Motor, error) {
	port, pins, cfgDelay, err := f.resolve(opts.Config)
	if err != nil {
		return nil, err
	}

	fmt.Println(dimStyle.Render(fmt.Sprintf("Opening %s (waiting for controller)...", port)))
	m, err := pool.Create(port, pins)
	if err != nil {
		return nil, err
	}

	if delay == 0 {
		delay = cfgDelay
	}
	if delay != 0 {
		if err := m.SetDelay(delay); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (c *RotateCommand) Execute(args []string) error {
	dir, err := stepper.ParseDirection(c.Direction)
	if err != nil {
		return err
	}

	pool := newPool(newLogger())
	defer pool.Close()

	m, err := openMotor(pool, c.MotorFlags, c.Delay)
	if err != nil {
		return err
	}

	if err := m.RotateSteps(dir, c.Steps); err != nil {
		return err
	}
	fmt.Printf("%s %s %d steps at %dus/step\n", headerStyle.Render(m.String()), dir, c.Steps, m.Delay())

	if c.NoWait {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println(dimStyle.Render(fmt.Sprintf("Estimated %s, Ctrl+C to stop", m.Remaining().Round(time.Millisecond))))
	if err := m.WaitReady(ctx); err != nil {
		fmt.Println(subHeaderStyle.Render("Interrupted, stopping motor"))
		return m.RotateOff()
	}

	fmt.Println(successStyle.Render("Done."))
	return nil
}

type SpinCommand struct {
	MotorFlags

	Direction string        `short:"d" long:"direction" default:"left" choice:"left" choice:"right" description:"Rotation direction"`
	Duration  time.Duration `short:"t" long:"duration" default:"5s" description:"How long to spin"`
	Delay     int32         `long:"delay" description:"Step delay in microseconds"`
}

func (c *SpinCommand) Execute(args []string) error {
	dir, err := stepper.ParseDirection(c.Direction)
	if err != nil {
		return err
	}

	pool := newPool(newLogger())
	defer pool.Close()

	m, err := openMotor(pool, c.MotorFlags, c.Delay)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := m.RotateContinuous(dir); err != nil {
		return err
	}
	fmt.Printf("%s spinning %s for %s\n", headerStyle.Render(m.String()), dir, c.Duration)

	select {
	case <-ctx.Done():
	case <-time.After(c.Duration):
	}

	if err := m.RotateOff(); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Stopped."))
	return nil
}
