package registry

import "github.com/consensus/pkg/models"

// DefaultCatalog returns the built-in provider and model list.
func DefaultCatalog() []models.Provider {
	return []models.Provider{
		{
			ID:          "google",
			DisplayName: "Google",
			Icon:        "🔍",
			Available:   true,
			Models: []models.Model{
				{ID: "gemini-1.5-pro-002", DisplayName: "Gemini 1.5 Pro", Available: true},
				{ID: "gemini-1.5-flash-002", DisplayName: "Gemini 1.5 Flash", Available: true},
				{ID: "gemini-1.5-flash-8b-001", DisplayName: "Gemini 1.5 Flash-8B", Available: true},
				{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", Available: true},
				{ID: "gemini-2.0-flash-001", DisplayName: "Gemini 2.0 Flash 001", Available: true},
				{ID: "gemini-2.0-flash-lite", DisplayName: "Gemini 2.0 Flash-Lite", Available: true},
				{ID: "gemini-2.5-pro-preview-05-06", DisplayName: "Gemini 2.5 Pro Preview", Available: true},
				{ID: "gemini-2.5-flash-preview-04-17", DisplayName: "Gemini 2.5 Flash Preview", Available: true},
			},
		},
		{
			ID:          "openai",
			DisplayName: "OpenAI",
			Icon:        "🤖",
			Available:   true,
			Models: []models.Model{
				{ID: "gpt-4o", DisplayName: "GPT-4o", Available: true},
				{ID: "gpt-4", DisplayName: "GPT-4", Available: true},
			},
		},
		{
			ID:          "deepseek",
			DisplayName: "DeepSeek",
			Icon:        "🔍",
			Available:   false,
			Models: []models.Model{
				{ID: "deepseek-coder", DisplayName: "DeepSeek Coder", Available: false},
				{ID: "deepseek-chat", DisplayName: "DeepSeek Chat", Available: false},
			},
		},
		{
			ID:          "anthropic",
			DisplayName: "Anthropic",
			Icon:        "🧠",
			Available:   false,
			Models: []models.Model{
				{ID: "claude-3-5-sonnet-latest", DisplayName: "Claude 3.5 Sonnet", Available: true},
				{ID: "claude-3-5-haiku-latest", DisplayName: "Claude 3.5 Haiku", Available: true},
			},
		},
		{
			ID:          "cohere",
			DisplayName: "Cohere",
			Icon:        "🌀",
			Available:   false,
			Models: []models.Model{
				{ID: "command-r-plus", DisplayName: "Command R+", Available: true},
				{ID: "command-r", DisplayName: "Command R", Available: true},
			},
		},
		{
			ID:          "ollama",
			DisplayName: "Ollama",
			Icon:        "🦙",
			Available:   false,
			Models: []models.Model{
				{ID: "llama3", DisplayName: "Llama 3", Available: true},
			},
		},
	}
}
