package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully parsed service configuration.
type Config struct {
	// tabular store
	StoreBaseURL string
	Document     string
	StoreToken   string
	StoreTimeout time.Duration
	RosterTable  string
	ChunkRows    int

	// terminal
	BridgeURL     string
	BridgeTimeout time.Duration
	TerminalPath  string
	TerminalProc  string

	// scheduler
	StaleAfter      time.Duration
	Attempts        int
	AttemptPause    time.Duration
	IdleSleep       time.Duration
	BetweenAccounts time.Duration
	ConfirmTries    int
	ConfirmPause    time.Duration
	WindowMonth     time.Month
	WindowDay       int

	// cycle journal
	JournalDir string

	// trading universe refresher
	UniverseEnabled    bool
	UniverseTable      string
	UniverseWindowDays int
	UniverseInterval   time.Duration
}

// ConfigTmp mirrors the yaml file; durations come in as strings and get
// validated during conversion.
type ConfigTmp struct {
	StoreBaseURL    string `yaml:"store_base_url"`
	Document        string `yaml:"document"`
	StoreTimeoutStr string `yaml:"store_timeout,omitempty"`
	RosterTable     string `yaml:"roster_table"`
	ChunkRows       int    `yaml:"chunk_rows,omitempty"`

	BridgeURL        string `yaml:"bridge_url"`
	BridgeTimeoutStr string `yaml:"bridge_timeout,omitempty"`
	TerminalPath     string `yaml:"terminal_path"`
	TerminalProc     string `yaml:"terminal_proc,omitempty"`

	StaleAfterStr      string `yaml:"stale_after,omitempty"`
	Attempts           int    `yaml:"attempts,omitempty"`
	AttemptPauseStr    string `yaml:"attempt_pause,omitempty"`
	IdleSleepStr       string `yaml:"idle_sleep,omitempty"`
	BetweenAccountsStr string `yaml:"between_accounts,omitempty"`
	ConfirmTries       int    `yaml:"confirm_tries,omitempty"`
	ConfirmPauseStr    string `yaml:"confirm_pause,omitempty"`
	WindowMonth        int    `yaml:"window_month,omitempty"`
	WindowDay          int    `yaml:"window_day,omitempty"`

	JournalDir string `yaml:"journal_dir,omitempty"`

	UniverseEnabled     bool   `yaml:"universe_enabled,omitempty"`
	UniverseTable       string `yaml:"universe_table,omitempty"`
	UniverseWindowDays  int    `yaml:"universe_window_days,omitempty"`
	UniverseIntervalStr string `yaml:"universe_interval,omitempty"`
}

// Get loads and validates the yaml config at path. The store token is never
// kept in the file, it comes from the STORE_TOKEN environment variable.
func Get(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("parse yaml config %s: %w", path, err)
	}

	if tmp.StoreBaseURL == "" {
		return Config{}, fmt.Errorf("missing 'store_base_url' param in yaml config")
	}
	if tmp.Document == "" {
		return Config{}, fmt.Errorf("missing 'document' param in yaml config")
	}
	if tmp.RosterTable == "" {
		return Config{}, fmt.Errorf("missing 'roster_table' param in yaml config")
	}
	if tmp.BridgeURL == "" {
		return Config{}, fmt.Errorf("missing 'bridge_url' param in yaml config")
	}
	if tmp.TerminalPath == "" {
		return Config{}, fmt.Errorf("missing 'terminal_path' param in yaml config")
	}

	cfg := Config{
		StoreBaseURL: tmp.StoreBaseURL,
		Document:     tmp.Document,
		StoreToken:   os.Getenv("STORE_TOKEN"),
		RosterTable:  tmp.RosterTable,
		ChunkRows:    tmp.ChunkRows,

		BridgeURL:    tmp.BridgeURL,
		TerminalPath: tmp.TerminalPath,
		TerminalProc: tmp.TerminalProc,

		Attempts:     tmp.Attempts,
		ConfirmTries: tmp.ConfirmTries,
		WindowDay:    tmp.WindowDay,

		JournalDir: tmp.JournalDir,

		UniverseEnabled:    tmp.UniverseEnabled,
		UniverseTable:      tmp.UniverseTable,
		UniverseWindowDays: tmp.UniverseWindowDays,
	}

	if cfg.TerminalProc == "" {
		cfg.TerminalProc = "terminal64.exe"
	}
	if cfg.ChunkRows == 0 {
		cfg.ChunkRows = 400
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 2
	}
	if cfg.ConfirmTries == 0 {
		cfg.ConfirmTries = 3
	}
	if cfg.WindowDay == 0 {
		cfg.WindowDay = 1
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = "./wal/cycles"
	}
	if cfg.UniverseTable == "" {
		cfg.UniverseTable = "trading_universe"
	}
	if cfg.UniverseWindowDays == 0 {
		cfg.UniverseWindowDays = 90
	}

	if tmp.WindowMonth == 0 {
		cfg.WindowMonth = time.September
	} else if tmp.WindowMonth >= 1 && tmp.WindowMonth <= 12 {
		cfg.WindowMonth = time.Month(tmp.WindowMonth)
	} else {
		return Config{}, fmt.Errorf("incorrect 'window_month' param in yaml config: %d", tmp.WindowMonth)
	}

	durations := []struct {
		name string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"store_timeout", tmp.StoreTimeoutStr, 30 * time.Second, &cfg.StoreTimeout},
		{"bridge_timeout", tmp.BridgeTimeoutStr, 90 * time.Second, &cfg.BridgeTimeout},
		{"stale_after", tmp.StaleAfterStr, 5 * time.Minute, &cfg.StaleAfter},
		{"attempt_pause", tmp.AttemptPauseStr, 2 * time.Second, &cfg.AttemptPause},
		{"idle_sleep", tmp.IdleSleepStr, 20 * time.Second, &cfg.IdleSleep},
		{"between_accounts", tmp.BetweenAccountsStr, 2 * time.Second, &cfg.BetweenAccounts},
		{"confirm_pause", tmp.ConfirmPauseStr, 800 * time.Millisecond, &cfg.ConfirmPause},
		{"universe_interval", tmp.UniverseIntervalStr, 24 * time.Hour, &cfg.UniverseInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			*d.dst = d.def
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect '%s' param in yaml config: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}
