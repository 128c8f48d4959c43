package endpoints

import (
	"github.com/jackzampolin/sysrev/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Schema and prompts
		&SchemaEndpoint{},
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},

		// Extraction endpoints
		&CreateExtractionEndpoint{},
		&ListExtractionsEndpoint{},
		&GetExtractionEndpoint{},
		&DownloadExtractionEndpoint{},
		&DeleteExtractionEndpoint{},

		// LLM call history endpoints
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},

		// Usage
		&UsageEndpoint{},

		// API docs
		&SwaggerEndpoint{},
	}
}
