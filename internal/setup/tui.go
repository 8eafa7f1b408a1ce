// Package setup hosts the interactive first-run configuration wizard.
package setup

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/okorotkov/fleetsync/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the configuration wizard and writes the generated yaml to
// outPath.
func RunTUI(outPath string) error {
	var (
		storeURL    string
		document    string
		rosterTable string
		bridgeURL   string
		termPath    string
		termProc    string
		staleAfter  string
		attemptsStr string
		universe    bool
		confirm     bool
	)

	// defaults
	rosterTable = "Accounts"
	bridgeURL = "http://127.0.0.1:8228"
	termProc = "terminal64.exe"
	staleAfter = "5m"
	attemptsStr = "2"

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FLEETSYNC CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Wire your account fleet to the shared document.\n"))

	// tabular store
	fmt.Println(stepStyle.Render("STEP 1: SHARED DOCUMENT"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Table Service URL").
				Description("Base URL of the tabular store API").
				Value(&storeURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Document ID").
				Value(&document).
				Validate(notEmpty("document id")),
			huh.NewInput().
				Title("Roster Table Name").
				Description("Table holding the account list").
				Value(&rosterTable).
				Validate(notEmpty("roster table")),
		),
	).Run()
	if err != nil {
		return err
	}

	// terminal
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FLEETSYNC CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: TRADING TERMINAL"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Terminal Executable Path").
				Description("Full path to the terminal binary").
				Value(&termPath).
				Validate(notEmpty("terminal path")),
			huh.NewInput().
				Title("Terminal Process Name").
				Value(&termProc),
			huh.NewInput().
				Title("Bridge URL").
				Description("HTTP endpoint of the terminal bridge").
				Value(&bridgeURL).
				Validate(validateURL),
		),
	).Run()
	if err != nil {
		return err
	}

	// loop timing
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FLEETSYNC CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: SCHEDULING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Staleness Threshold").
				Description("Duration string (e.g. 5m, 1h)").
				Value(&staleAfter).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewInput().
				Title("Attempts per Account").
				Value(&attemptsStr).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 {
						return fmt.Errorf("must be a positive integer")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Enable Universe Refresher?").
				Description("Keeps daily close fractions of the trading universe current").
				Value(&universe),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FLEETSYNC CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Store: %s\nDocument: %s\nRoster: %s\nTerminal: %s\nBridge: %s\nStale After: %s\nAttempts: %s\nUniverse: %t\n",
		storeURL, document, rosterTable, termPath, bridgeURL, staleAfter, attemptsStr, universe,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	attempts, _ := strconv.Atoi(attemptsStr)
	cfgTmp := config.ConfigTmp{
		StoreBaseURL:    storeURL,
		Document:        document,
		RosterTable:     rosterTable,
		BridgeURL:       bridgeURL,
		TerminalPath:    termPath,
		TerminalProc:    termProc,
		StaleAfterStr:   staleAfter,
		Attempts:        attempts,
		UniverseEnabled: universe,
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nSet STORE_TOKEN in the environment before starting.", outPath)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func notEmpty(name string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
}
