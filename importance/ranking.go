// ranking.go - Aggregation, Ranking und Gewichts-Tabelle
//
// Enthaelt:
// - Result: aggregierte Attributionen ueber alle Beispiele
// - Ranking: Token-Typen absteigend nach Aggregat-Score
// - TopK: ConceptVocabularySet der k wichtigsten Tokens
// - Weights: unveraenderliche Lookup-Tabelle token -> Gewicht [0,1]
// - WriteReport: menschenlesbarer Report
package importance

import (
	"fmt"
	"io"
	"sort"

	"github.com/emirpasic/gods/v2/sets/treeset"
	"github.com/olekukonko/tablewriter"
)

// Result haelt die aggregierten Attributionen einer Analyse.
// Aggregiert wird pro Token-Typ ueber alle Vorkommen aller Beispiele.
type Result struct {
	Attributions []*Attribution
	Violations   int

	sum   map[int]float64
	count map[int]int
}

// RankedToken ist ein Eintrag des ImportanceRanking-Reports.
type RankedToken struct {
	Rank  int
	Token int
	Score float64 // sum aggregate across occurrences
	Mean  float64 // mean aggregate
	Count int
}

// Ranking gibt alle gesehenen Token-Typen absteigend nach Score zurueck.
// Gleichstand wird ueber die Token-ID aufgeloest, damit das Ranking
// deterministisch ist.
func (r *Result) Ranking() []RankedToken {
	out := make([]RankedToken, 0, len(r.sum))
	for id, score := range r.sum {
		out = append(out, RankedToken{
			Token: id,
			Score: score,
			Mean:  score / float64(r.count[id]),
			Count: r.count[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Token < out[j].Token
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// TopK baut das ConceptVocabularySet aus den k wichtigsten Tokens.
// Das Set iteriert geordnet und ist fuer die Dauer eines Runs
// unveraenderlich zu behandeln.
func (r *Result) TopK(k int) *treeset.Set[int] {
	ranking := r.Ranking()
	if k > len(ranking) {
		k = len(ranking)
	}
	set := treeset.New[int]()
	for _, rt := range ranking[:k] {
		set.Add(rt.Token)
	}
	return set
}

// Weights berechnet die Gewichts-Tabelle token -> [0,1]: Scores werden
// auf das Maximum normiert, negative Attributionen auf 0 geklemmt.
// Die Tabelle wird einmal berechnet und vom Trainer fuer die gesamte
// Laufzeit wiederverwendet; ein Refresh ist eine explizite neue Analyse.
func (r *Result) Weights() map[int]float64 {
	ranking := r.Ranking()
	if len(ranking) == 0 {
		return nil
	}
	max := ranking[0].Score
	weights := make(map[int]float64, len(ranking))
	for _, rt := range ranking {
		switch {
		case max <= 0 || rt.Score <= 0:
			weights[rt.Token] = 0
		default:
			weights[rt.Token] = rt.Score / max
		}
	}
	return weights
}

// WriteReport rendert das Ranking als Tabelle. limit <= 0 heisst alle.
func (r *Result) WriteReport(w io.Writer, limit int) {
	ranking := r.Ranking()
	if limit > 0 && limit < len(ranking) {
		ranking = ranking[:limit]
	}

	var data [][]string
	for _, rt := range ranking {
		data = append(data, []string{
			fmt.Sprintf("%d", rt.Rank),
			fmt.Sprintf("%d", rt.Token),
			fmt.Sprintf("%.6f", rt.Score),
			fmt.Sprintf("%.6f", rt.Mean),
			fmt.Sprintf("%d", rt.Count),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"RANK", "TOKEN", "SCORE", "MEAN", "COUNT"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
