package main

import "time"

// Flag structs decouple cobra wiring from command logic for testing.

// GlobalFlags are the persistent flags every command sees.
type GlobalFlags struct {
	Env       string // environment selector (closed set)
	EnvDir    string // directory holding .env.<environment> files
	FleetPath string // optional TOML fleet override
	Verbose   bool
}

// StartFlags tune the per-service state machine timings.
type StartFlags struct {
	SettleDelay          time.Duration
	RegistrationAttempts int
	RegistrationInterval time.Duration
}

type StopFlags struct {
	Wait time.Duration
}

type LogsFlags struct {
	Lines  int
	Follow bool
}

type HistoryFlags struct {
	Limit int
}

type ServeFlags struct {
	Listen   string
	BasePath string
	LogFile  string
}
