// config.go - Haupt-Konfigurationsfunktionen fuer Lethe
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (LETHE_DEBUG)
// - Checkpoints: Gibt Checkpoint-Verzeichnis zurueck (LETHE_CHECKPOINTS)
// - IGSteps: Interpolationsschritte fuer Integrated Gradients (LETHE_IG_STEPS)
// - RetainLambda: Gewicht des Retention-Regularisierers (LETHE_RETAIN_LAMBDA)
// - Workers: Parallelitaet der Attribution (LETHE_WORKERS)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via LETHE_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("LETHE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Checkpoints gibt das Checkpoint-Verzeichnis zurueck
// Konfigurierbar via LETHE_CHECKPOINTS
// Default: $HOME/.lethe/checkpoints
func Checkpoints() string {
	if s := Var("LETHE_CHECKPOINTS"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".lethe", "checkpoints")
}

// Database gibt den Pfad der Run-Datenbank zurueck
// Konfigurierbar via LETHE_DATABASE
// Default: $HOME/.lethe/lethe.db
func Database() string {
	if s := Var("LETHE_DATABASE"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".lethe", "lethe.db")
}

var (
	// IGSteps: Anzahl der Interpolationsschritte fuer Integrated Gradients (Default: 64)
	IGSteps = Uint("LETHE_IG_STEPS", 64)

	// Workers: Anzahl paralleler Attribution-Worker (Default: Anzahl CPUs)
	Workers = Uint("LETHE_WORKERS", uint(runtime.NumCPU()))

	// RetainLambda: Gewicht des Retention-Terms im kombinierten Loss (Default: 1.0)
	RetainLambda = Float("LETHE_RETAIN_LAMBDA", 1.0)

	// IGTolerance: Toleranz fuer das Vollstaendigkeits-Axiom (Default: 0.05)
	IGTolerance = Float("LETHE_IG_TOLERANCE", 0.05)
)

// Var liest eine Environment-Variable und entfernt Quotes und Whitespace
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
