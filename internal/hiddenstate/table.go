package hiddenstate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/hidden-states/internal/inference"
	"github.com/joseph-ayodele/hidden-states/internal/pickle"
)

// Row is the hidden state of one document.
type Row struct {
	Document    string
	Tokens      int
	HiddenState [][]float32
}

// Table is the result of one extraction run.
type Table struct {
	Model     string
	ModelPath string
	Rows      []Row
}

// FromInference converts model-server outputs into table rows, in order.
func FromInference(states []inference.HiddenState) []Row {
	rows := make([]Row, 0, len(states))
	for _, hs := range states {
		tokens := hs.NumTokens
		if tokens <= 0 {
			tokens = len(hs.HiddenState)
		}
		rows = append(rows, Row{Document: hs.ID, Tokens: tokens, HiddenState: hs.HiddenState})
	}
	return rows
}

func (t *Table) Len() int { return len(t.Rows) }

// Dim is the hidden size, taken from the first non-empty row.
func (t *Table) Dim() int {
	for _, r := range t.Rows {
		if len(r.HiddenState) > 0 {
			return len(r.HiddenState[0])
		}
	}
	return 0
}

// Columns returns the table in column-oriented form, as pandas.DataFrame(dict) expects.
func (t *Table) Columns() pickle.Dict {
	docs := make([]string, len(t.Rows))
	tokens := make([]int, len(t.Rows))
	states := make([][][]float32, len(t.Rows))
	for i, r := range t.Rows {
		docs[i] = r.Document
		tokens[i] = r.Tokens
		states[i] = r.HiddenState
		if states[i] == nil {
			states[i] = [][]float32{}
		}
	}
	return pickle.Dict{
		{Key: "document", Value: docs},
		{Key: "num_tokens", Value: tokens},
		{Key: "hidden_state", Value: states},
	}
}

// MeanNorm is the average L2 norm of a row's token vectors.
func (r Row) MeanNorm() float64 {
	if len(r.HiddenState) == 0 {
		return 0
	}
	var total float64
	for _, vec := range r.HiddenState {
		var sq float64
		for _, v := range vec {
			sq += float64(v) * float64(v)
		}
		total += math.Sqrt(sq)
	}
	return total / float64(len(r.HiddenState))
}

// Preview formats the first n values of the first token vector.
func (r Row) Preview(n int) string {
	if len(r.HiddenState) == 0 {
		return "[]"
	}
	vec := r.HiddenState[0]
	parts := make([]string, 0, n+1)
	for i, v := range vec {
		if i == n {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, strconv.FormatFloat(float64(v), 'f', 4, 32))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Records returns display rows: document, tokens, dim, preview.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		dim := 0
		if len(r.HiddenState) > 0 {
			dim = len(r.HiddenState[0])
		}
		out = append(out, []string{
			r.Document,
			strconv.Itoa(r.Tokens),
			strconv.Itoa(dim),
			r.Preview(4),
		})
	}
	return out
}

func (t *Table) String() string {
	return fmt.Sprintf("HiddenStates(model=%s, rows=%d, dim=%d)", t.Model, t.Len(), t.Dim())
}
