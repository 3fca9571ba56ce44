package dispatch

import (
	"path/filepath"

	"github.com/joseph-ayodele/hidden-states/constants"
)

// Family is the wrapper a mode runs through.
type Family int

const (
	FamilyLayoutLM Family = iota + 1
	FamilyLayoutLMv2
)

func (f Family) String() string {
	switch f {
	case FamilyLayoutLM:
		return "layoutlm"
	case FamilyLayoutLMv2:
		return "layoutlmv2"
	default:
		return "unknown"
	}
}

// ModeSpec is one row of the dispatch table.
type ModeSpec struct {
	Mode        constants.Mode
	Family      Family
	ModelSubdir string // empty for vanilla models
	OutputFile  string
}

// Modes maps every accepted mode to its wrapper, fine-tuned weights and output file.
var Modes = []ModeSpec{
	{Mode: constants.ModeVanillaLMv1, Family: FamilyLayoutLM, OutputFile: "layoutlm_noft_encodings.pkl"},
	{Mode: constants.ModeFinetunedLMv1Related, Family: FamilyLayoutLM, ModelSubdir: "fine_tune_related", OutputFile: "layoutlm_ft_encodings.pkl"},
	{Mode: constants.ModeFinetunedLMv1Unrelated, Family: FamilyLayoutLM, ModelSubdir: "fine_tuned_unrelated2", OutputFile: "layoutlm_ft_ur_encodings.pkl"},
	{Mode: constants.ModeVanillaLMv2, Family: FamilyLayoutLMv2, OutputFile: "layoutlmv2_noft_encodings.pkl"},
	{Mode: constants.ModeFinetunedLMv2Related, Family: FamilyLayoutLMv2, ModelSubdir: "fine_tune_related_v2", OutputFile: "layoutlmv2_ft_encodings.pkl"},
}

// Lookup finds the spec for an exact mode string.
func Lookup(mode string) (ModeSpec, bool) {
	for _, s := range Modes {
		if string(s.Mode) == mode {
			return s, true
		}
	}
	return ModeSpec{}, false
}

func (s ModeSpec) FineTuned() bool { return s.ModelSubdir != "" }

func (s ModeSpec) OutputPath(embeddingDir string) string {
	return filepath.Join(embeddingDir, s.OutputFile)
}

// ModelPath is modelsDir/ModelSubdir, or "" for vanilla modes.
func (s ModeSpec) ModelPath(modelsDir string) string {
	if !s.FineTuned() {
		return ""
	}
	return filepath.Join(modelsDir, s.ModelSubdir)
}
