package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/stepper/pkg/stepper"
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Stepper Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println()

	cfg := &stepper.Config{Motors: make(map[string]stepper.MotorConfig)}
	if stepper.ConfigExists(opts.Config) {
		loaded, err := stepper.LoadConfigFrom(opts.Config)
		if err != nil {
			return err
		}
		cfg = loaded
		fmt.Printf("Editing %s (%d motors)\n\n", opts.Config, len(cfg.Motors))
	}

	ports, err := stepper.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the controller is connected.")
		os.Exit(1)
	}

	for {
		name, mc, err := askMotor(cfg, ports)
		if err != nil {
			// Aborted form
			fmt.Println()
			os.Exit(0)
		}
		cfg.Motors[name] = mc
		fmt.Println(successStyle.Render(fmt.Sprintf("Added %s on %s [%s]", name, mc.Port, formatPins(mc.Pins))))

		if err := cfg.SaveTo(opts.Config); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		another := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Add another motor?").
				Value(&another),
		))
		if err := form.Run(); err != nil || !another {
			break
		}
		fmt.Println()
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Try a motor with: " + headerStyle.Render("stepper rotate --motor <name> --steps 200"))

	return nil
}

func askMotor(cfg *stepper.Config, ports []string) (string, stepper.MotorConfig, error) {
	var name, port, pins string
	delay := strconv.Itoa(stepper.DefaultStepDelay)

	var choice []huh.Option[string]
	for _, p := range ports {
		label := fmt.Sprintf("%s (%d/%d motors)", p, motorsOnPort(cfg, p, ""), stepper.MaxMotorsPerPort)
		choice = append(choice, huh.NewOption(label, p))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Motor name").
				Value(&name).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Serial port").
				Options(choice...).
				Value(&port).
				Validate(func(p string) error {
					if motorsOnPort(cfg, p, name) >= stepper.MaxMotorsPerPort {
						return fmt.Errorf("%s already drives %d motors", p, stepper.MaxMotorsPerPort)
					}
					return nil
				}),
			huh.NewInput().
				Title("Controller pins").
				Description("Four comma separated pin numbers, e.g. 8,9,10,11").
				Value(&pins).
				Validate(func(s string) error {
					_, err := parsePins(s)
					return err
				}),
			huh.NewInput().
				Title("Step delay (us)").
				Value(&delay).
				Validate(func(s string) error {
					v, err := strconv.Atoi(s)
					if err != nil || v < 1 {
						return errors.New("must be a positive number")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", stepper.MotorConfig{}, err
	}

	p, err := parsePins(pins)
	if err != nil {
		return "", stepper.MotorConfig{}, err
	}
	d, err := strconv.Atoi(delay)
	if err != nil {
		return "", stepper.MotorConfig{}, err
	}
	return name, stepper.MotorConfig{Port: port, Pins: p, Delay: int32(d)}, nil
}

// motorsOnPort counts configured motors on port, not counting the motor
// named except (it is being replaced).
func motorsOnPort(cfg *stepper.Config, port, except string) int {
	n := 0
	for name, mc := range cfg.Motors {
		if mc.Port == port && name != except {
			n++
		}
	}
	return n
}
