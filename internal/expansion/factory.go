package expansion

import (
	"github.com/tmc/langchaingo/llms"

	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

// New returns the expander for mode. model may be nil unless mode is
// ModeLLM.
func New(mode Mode, model llms.Model, temperature float64) (Transformer, error) {
	switch mode {
	case ModeNone:
		return Passthrough{}, nil
	case ModeLLM:
		if model == nil {
			return nil, apperrors.Configf("expansion mode %q requires a chat model", mode)
		}
		return NewLLM(model, temperature), nil
	default:
		return Template{}, nil
	}
}
