package config

import "flag"

// Flags are the command-line options of the service.
type Flags struct {
	ConfigPath string
	Setup      bool
}

// ParseFlags reads the command line once.
func ParseFlags() Flags {
	path := flag.String("config", "config.yaml", "path to yaml config")
	setup := flag.Bool("setup", false, "run the interactive configuration wizard and exit")
	flag.Parse()

	return Flags{ConfigPath: *path, Setup: *setup}
}
