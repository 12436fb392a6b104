package models

// Registry models

// Model describes a single model offered by a provider.
type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	ProviderID  string `json:"providerId"`
	Available   bool   `json:"available"`
}

// Provider describes an LLM provider and the models it offers.
type Provider struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"name"`
	Icon        string  `json:"icon"`
	Available   bool    `json:"available"`
	Models      []Model `json:"models"`
}

// ModelLabel is the display metadata snapshotted into a response slot.
type ModelLabel struct {
	ModelID      string `json:"modelId"`
	ModelName    string `json:"modelName"`
	ProviderName string `json:"providerName"`
	ProviderIcon string `json:"providerIcon"`
}

// Settings models

// ModelSettings are the per-model generation settings chosen by a user.
// Visible only affects presentation and never dispatch.
type ModelSettings struct {
	UseInternet bool    `json:"useInternet"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	Visible     bool    `json:"visible"`
}

// DefaultModelSettings returns the settings a model gets the first time it is activated.
func DefaultModelSettings() ModelSettings {
	return ModelSettings{
		UseInternet: false,
		Temperature: 0.7,
		MaxTokens:   800,
		Visible:     true,
	}
}

// UserSettings is everything the settings store keeps for one owner.
type UserSettings struct {
	ActiveModels  []string                 `json:"activeModels"`
	ModelSettings map[string]ModelSettings `json:"modelSettings"`
}

// Dispatch models

// Outcome is the settled result of one model call. Exactly one of Text and Err is set.
type Outcome struct {
	ModelID   string
	ModelName string
	Text      string
	Err       error
}

// Succeeded reports whether the call produced completion text.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Text != ""
}
