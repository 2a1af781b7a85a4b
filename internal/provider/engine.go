package provider

import "strings"

// Engine identifies a provider backend
type Engine string

const (
	EngineOpenAI    Engine = "openai"
	EngineSoniox    Engine = "soniox"
	EngineDashScope Engine = "dashscope"
	EngineGemini    Engine = "gemini"
)

func (e Engine) String() string {
	return string(e)
}

// ParseRecognitionEngine maps a configured engine name to a recognition
// backend. Unknown names select OpenAI.
func ParseRecognitionEngine(name string) Engine {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "soniox":
		return EngineSoniox
	case "qwen", "dashscope":
		return EngineDashScope
	default:
		return EngineOpenAI
	}
}

// ParseLanguageEngine maps a configured engine name to a translation,
// summary or optimize backend. Unknown names select OpenAI.
func ParseLanguageEngine(name string) Engine {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini":
		return EngineGemini
	default:
		return EngineOpenAI
	}
}
