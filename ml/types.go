// Package ml - Kern-Interfaces fuer Modell-Berechnungen
//
// Dieses Modul definiert das Transformer-Interface (eingefrorene,
// deterministische Funktion von Embedding-Sequenzen zu Hidden-States)
// sowie den VJP-Typ fuer den Rueckwaertspfad zu den Input-Embeddings.
package ml

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// VJP maps a cotangent of the hidden states back to a cotangent of the
// input embeddings. Shapes match the forward call (T x dim).
type VJP func(gradHidden *mat.Dense) *mat.Dense

// Transformer is a frozen, deterministic function from a sequence of
// embedding vectors to hidden states. Implementations must not retain or
// mutate the input, and repeated calls on equal input must produce equal
// output. The returned VJP closes over the forward activations.
type Transformer interface {
	// Forward computes hidden states for a T x dim embedding matrix.
	Forward(ctx context.Context, embeds *mat.Dense) (*mat.Dense, VJP, error)

	// Dim reports the embedding dimension the transformer operates on.
	Dim() int
}
