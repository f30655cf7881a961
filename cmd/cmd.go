// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lethe-ml/lethe/envconfig"
)

// Version der CLI.
const Version = "0.3.0"

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "lethe",
		Short:         "Embedding-level concept unlearning toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				fmt.Println("lethe version", Version)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	runsCmd := newRunsCmd()
	metricsCmd := newMetricsCmd()
	rankingCmd := newRankingCmd()
	checkpointCmd := newCheckpointCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{runsCmd, metricsCmd, rankingCmd} {
		appendEnvDocs(cmd, []envconfig.EnvVar{envVars["LETHE_DATABASE"]})
	}
	appendEnvDocs(checkpointCmd, []envconfig.EnvVar{envVars["LETHE_CHECKPOINTS"]})

	rootCmd.AddCommand(
		runsCmd,
		metricsCmd,
		rankingCmd,
		checkpointCmd,
	)

	return rootCmd
}
