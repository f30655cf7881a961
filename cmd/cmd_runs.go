// cmd_runs.go - Runs, Metrics und Ranking Commands
// Hauptfunktionen: RunsHandler, MetricsHandler, RankingHandler
package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lethe-ml/lethe/envconfig"
	"github.com/lethe-ml/lethe/store"
)

func openStore(cmd *cobra.Command) *store.Store {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = envconfig.Database()
	}
	return &store.Store{Path: path}
}

// renderTable - Rendert Zeilen im ueblichen Listen-Layout
func renderTable(header []string, data [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// RunsHandler - Listet alle persistierten Unlearning-Runs auf
func RunsHandler(cmd *cobra.Command, args []string) error {
	s := openStore(cmd)
	defer s.Close()

	runs, err := s.Runs()
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{
			r.ID[:12],
			r.Status,
			fmt.Sprintf("%d", r.FinalStep),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			finished,
		})
	}

	renderTable([]string{"ID", "STATUS", "STEPS", "CREATED", "FINISHED"}, data)
	return nil
}

// MetricsHandler - Zeigt den Metrik-Strom eines Runs
func MetricsHandler(cmd *cobra.Command, args []string) error {
	s := openStore(cmd)
	defer s.Close()

	id, err := s.ResolveRun(args[0])
	if err != nil {
		return err
	}
	metrics, err := s.Metrics(id)
	if err != nil {
		return err
	}

	var data [][]string
	for _, m := range metrics {
		data = append(data, []string{
			fmt.Sprintf("%d", m.Step),
			fmt.Sprintf("%.6f", m.LossUnlearn),
			fmt.Sprintf("%.6f", m.LossRetain),
			fmt.Sprintf("%.6f", m.ForgetProb),
		})
	}

	renderTable([]string{"STEP", "LOSS_UNLEARN", "LOSS_RETAIN", "FORGET_PROB"}, data)
	return nil
}

// RankingHandler - Zeigt das persistierte ImportanceRanking eines Runs
func RankingHandler(cmd *cobra.Command, args []string) error {
	s := openStore(cmd)
	defer s.Close()

	id, err := s.ResolveRun(args[0])
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := s.Ranking(id, limit)
	if err != nil {
		return err
	}

	var data [][]string
	for _, e := range entries {
		data = append(data, []string{
			fmt.Sprintf("%d", e.Rank),
			fmt.Sprintf("%d", e.Token),
			fmt.Sprintf("%.6f", e.Score),
		})
	}

	renderTable([]string{"RANK", "TOKEN", "SCORE"}, data)
	return nil
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded unlearning runs",
		Args:  cobra.ExactArgs(0),
		RunE:  RunsHandler,
	}
	cmd.Flags().String("db", "", "Path of the run database")
	return cmd
}

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics RUN",
		Short: "Show the per-step metrics stream of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  MetricsHandler,
	}
	cmd.Flags().String("db", "", "Path of the run database")
	return cmd
}

func newRankingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ranking RUN",
		Short: "Show the importance ranking of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  RankingHandler,
	}
	cmd.Flags().String("db", "", "Path of the run database")
	cmd.Flags().Int("limit", 20, "Number of entries to show (0 = all)")
	return cmd
}
