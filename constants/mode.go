package constants

// Mode selects which model variant hidden states are extracted from.
type Mode string

const (
	ModeVanillaLMv1            Mode = "vanilla_lmv1"
	ModeFinetunedLMv1Related   Mode = "finetuned_lmv1_related"
	ModeFinetunedLMv1Unrelated Mode = "finetuned_lmv1_unrelated"
	ModeVanillaLMv2            Mode = "vanilla_lmv2"
	ModeFinetunedLMv2Related   Mode = "finetuned_lmv2_related"
)

// Modes holds the accepted modes in the order they are listed in usage text.
var Modes = []Mode{
	ModeVanillaLMv1,
	ModeFinetunedLMv1Related,
	ModeFinetunedLMv1Unrelated,
	ModeVanillaLMv2,
	ModeFinetunedLMv2Related,
}

// ModeStrings returns Modes as plain strings.
func ModeStrings() []string {
	out := make([]string, 0, len(Modes))
	for _, m := range Modes {
		out = append(out, string(m))
	}
	return out
}
