package ai

// DefaultMetisBaseURL is Metis's OpenAI-compatible gateway.
const DefaultMetisBaseURL = "https://api.metisai.ir/openai/v1"

// NewMetisAdapter talks to Metis through the OpenAI client.
// Authorization is a bearer METIS_API_KEY, as with OpenAI.
func NewMetisAdapter(apiKey, baseURL, model string, maxTokens int) (*OpenAIAdapter, error) {
	if baseURL == "" {
		baseURL = DefaultMetisBaseURL
	}
	return newOpenAICompatible("metis", apiKey, baseURL, model, maxTokens)
}
