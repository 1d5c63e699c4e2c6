// Package llm provides centralized model configuration and client
// abstractions over text-generation providers.
package llm

// Provider represents a text-generation provider.
type Provider string

// Provider constants define supported providers.
const (
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini Provider = "gemini"
	// ProviderAzureOpenAI is an Azure-hosted OpenAI chat-completions deployment.
	ProviderAzureOpenAI Provider = "azure-openai"
)

// Config holds the model configuration for the application.
type Config struct {
	Provider Provider
	// Model is the Gemini model name; ignored for Azure deployments.
	Model string
	// AzureEndpoint is the resource base URL, e.g. https://example.openai.azure.com.
	AzureEndpoint string
	// AzureDeployment is the chat-completions deployment name.
	AzureDeployment string
	// MaxTokens caps the completion size per request.
	MaxTokens int
	// Temperature controls sampling. The report prompts were tuned at 0.5.
	Temperature float32
}

// DefaultConfig returns the default configuration (currently Gemini).
func DefaultConfig() *Config {
	return &Config{
		Provider:    ProviderGemini,
		Model:       "gemini-2.5-flash",
		MaxTokens:   1500,
		Temperature: 0.5,
	}
}
