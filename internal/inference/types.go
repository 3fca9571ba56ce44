package inference

// Wire types for the model server. Boxes are [x0, y0, x1, y1] on the 0..1000 grid.

type EncodeDocument struct {
	ID    string   `json:"id"`
	Words []string `json:"words"`
	Boxes [][4]int `json:"boxes"`
}

type EncodeRequest struct {
	Model     string           `json:"model"`
	Documents []EncodeDocument `json:"documents"`
}

// Encoding is the tokenizer output for one document.
type Encoding struct {
	ID            string   `json:"id"`
	InputIDs      []int    `json:"input_ids"`
	AttentionMask []int    `json:"attention_mask"`
	BBox          [][4]int `json:"bbox"`
}

type EncodeResponse struct {
	Encodings []Encoding `json:"encodings"`
}

type HiddenStatesRequest struct {
	Model     string     `json:"model"`
	ModelPath string     `json:"model_path,omitempty"`
	Encodings []Encoding `json:"encodings"`
}

// HiddenState is the last-layer output for one document, one vector per token.
type HiddenState struct {
	ID          string      `json:"id"`
	NumTokens   int         `json:"num_tokens"`
	HiddenState [][]float32 `json:"hidden_state"`
}

type HiddenStatesResponse struct {
	HiddenStates []HiddenState `json:"hidden_states"`
}

// Image is one page image, base64-encoded.
type Image struct {
	ID     string `json:"id"`
	Format string `json:"format"`
	Data   string `json:"data"`
}

type OutputsRequest struct {
	Model     string  `json:"model"`
	ModelPath string  `json:"model_path,omitempty"`
	Images    []Image `json:"images"`
}

type OutputsResponse struct {
	Outputs []HiddenState `json:"outputs"`
}
