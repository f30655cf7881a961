// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - Bool: Boolean-Getter mit Default-Wert
// - Uint: Integer-Getter mit Default-Wert
// - Float: Float-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
package envconfig

import (
	"log/slog"
	"strconv"
)

// Bool gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func Bool(key string, defaultValue bool) func() bool {
	return func() bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
				return defaultValue
			}
			return b
		}
		return defaultValue
	}
}

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Float gibt eine Funktion zurueck, die einen float64 mit Default-Wert liest
func Float(key string, defaultValue float64) func() float64 {
	return func() float64 {
		if s := Var(key); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return f
			}
		}
		return defaultValue
	}
}

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LETHE_DEBUG":         {"LETHE_DEBUG", LogLevel(), "Show additional debug information (e.g. LETHE_DEBUG=1)"},
		"LETHE_CHECKPOINTS":   {"LETHE_CHECKPOINTS", Checkpoints(), "Directory for embedding table checkpoints"},
		"LETHE_DATABASE":      {"LETHE_DATABASE", Database(), "Path of the run database"},
		"LETHE_IG_STEPS":      {"LETHE_IG_STEPS", IGSteps(), "Interpolation steps for integrated gradients (default 64)"},
		"LETHE_IG_TOLERANCE":  {"LETHE_IG_TOLERANCE", IGTolerance(), "Completeness tolerance for integrated gradients (default 0.05)"},
		"LETHE_WORKERS":       {"LETHE_WORKERS", Workers(), "Concurrent attribution workers (default: number of CPUs)"},
		"LETHE_RETAIN_LAMBDA": {"LETHE_RETAIN_LAMBDA", RetainLambda(), "Weight of the retention loss term (default 1.0)"},
	}
}
