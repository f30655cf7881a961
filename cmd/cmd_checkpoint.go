// cmd_checkpoint.go - Checkpoint-Inspektion
// Hauptfunktionen: CheckpointHandler
package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/lethe-ml/lethe/model"
)

// CheckpointHandler - Zeigt Metadaten eines Embedding-Checkpoints
//
// Laedt die Datei komplett und verifiziert dabei Magic, Version und
// Digest: ein lesbarer Checkpoint ist auch ein gueltiger.
func CheckpointHandler(cmd *cobra.Command, args []string) error {
	table, err := model.ReadTable(args[0])
	if err != nil {
		return err
	}
	vocab, dim := table.Dims()

	var min, max, sum float64
	min = math.Inf(1)
	max = math.Inf(-1)
	for r := 0; r < vocab; r++ {
		var norm float64
		for _, v := range table.RawRowView(r) {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		sum += norm
		if norm < min {
			min = norm
		}
		if norm > max {
			max = norm
		}
	}

	p := cmd.OutOrStdout()
	fmt.Fprintf(p, "  Vocab       %d\n", vocab)
	fmt.Fprintf(p, "  Dim         %d\n", dim)
	fmt.Fprintf(p, "  Row norm    min %.4f / mean %.4f / max %.4f\n", min, sum/float64(vocab), max)
	fmt.Fprintf(p, "  Integrity   ok\n")
	return nil
}

func newCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint PATH",
		Short: "Inspect and verify an embedding table checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  CheckpointHandler,
	}
}
