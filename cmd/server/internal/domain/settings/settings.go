// Package settings stores LLM setting overrides made at runtime. Unset
// values fall back to the server configuration.
package settings

import (
	"strings"
	"unicode/utf8"
)

// Values are the effective LLM settings.
type Values struct {
	LLMProvider  string
	LLMModel     string
	SystemPrompt string
	OpenAIAPIKey string
}

// Overlay holds the stored overrides. A nil field is not overridden.
type Overlay struct {
	LLMProvider  *string
	LLMModel     *string
	SystemPrompt *string
	OpenAIAPIKey *string
}

// Resolve applies o on top of defaults.
func (o Overlay) Resolve(defaults Values) Values {
	v := defaults
	pick(&v.LLMProvider, o.LLMProvider)
	pick(&v.LLMModel, o.LLMModel)
	pick(&v.SystemPrompt, o.SystemPrompt)
	pick(&v.OpenAIAPIKey, o.OpenAIAPIKey)
	return v
}

func pick(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// Update is a settings change. A nil field is left as is and an empty
// string removes the override. A masked API key is ignored.
type Update struct {
	LLMProvider  *string `json:"llm_provider"`
	LLMModel     *string `json:"llm_model"`
	SystemPrompt *string `json:"system_prompt"`
	OpenAIAPIKey *string `json:"openai_api_key"`
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.LLMProvider == nil && u.LLMModel == nil && u.SystemPrompt == nil && u.OpenAIAPIKey == nil
}

// View is what clients see. The API key is never returned in full.
type View struct {
	LLMProvider        string `json:"llm_provider"`
	LLMModel           string `json:"llm_model"`
	SystemPrompt       string `json:"system_prompt"`
	OpenAIAPIKeyMasked string `json:"openai_api_key_masked"`
	OpenAIAPIKeyIsSet  bool   `json:"openai_api_key_is_set"`
}

// NewView masks v for display.
func NewView(v Values) View {
	return View{
		LLMProvider:        v.LLMProvider,
		LLMModel:           v.LLMModel,
		SystemPrompt:       v.SystemPrompt,
		OpenAIAPIKeyMasked: MaskKey(v.OpenAIAPIKey),
		OpenAIAPIKeyIsSet:  v.OpenAIAPIKey != "",
	}
}

// MaskKey keeps the first three and last four characters of keys longer
// than eight characters.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if utf8.RuneCountInString(key) <= 8 {
		return "***"
	}
	r := []rune(key)
	return string(r[:3]) + "..." + string(r[len(r)-4:])
}

// isMasked reports whether a submitted key is the masked form of the
// current key rather than a new one.
func isMasked(submitted, current string) bool {
	if strings.Contains(submitted, "***") {
		return true
	}
	return current != "" && submitted == MaskKey(current)
}
