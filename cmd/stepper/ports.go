package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/stepper/pkg/stepper"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := stepper.ListPorts()
	if err != nil {
		return err
	}

	var cfg *stepper.Config
	if stepper.ConfigExists(opts.Config) {
		if cfg, err = stepper.LoadConfigFrom(opts.Config); err != nil {
			return err
		}
	}

	fmt.Println(headerStyle.Render("Serial ports"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println(renderPorts(ports, cfg))
	return nil
}

// renderPorts lists every detected port with the configured motors on it.
// Ports only present in the config are shown as missing.
func renderPorts(ports []string, cfg *stepper.Config) string {
	byPort := make(map[string][]string)
	if cfg != nil {
		for _, name := range cfg.MotorNames() {
			mc := cfg.Motors[name]
			byPort[mc.Port] = append(byPort[mc.Port], fmt.Sprintf("%s [%s]", name, formatPins(mc.Pins)))
		}
	}

	seen := make(map[string]bool)
	var rows [][]string
	for _, port := range ports {
		seen[port] = true
		rows = append(rows, []string{port, "present", strings.Join(byPort[port], ", ")})
	}
	if cfg != nil {
		for _, name := range cfg.MotorNames() {
			port := cfg.Motors[name].Port
			if seen[port] {
				continue
			}
			seen[port] = true
			rows = append(rows, []string{port, "missing", strings.Join(byPort[port], ", ")})
		}
	}

	if len(rows) == 0 {
		return "No serial ports found."
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Port", "Status", "Motors").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Bold(true).Foreground(lipgloss.Color("12"))
			}
			if col == 1 && rows[row][1] == "missing" {
				return cellStyle.Foreground(lipgloss.Color("9"))
			}
			return cellStyle
		}).
		Render()
}
