package handlers

import (
	"net/http"

	"github.com/scrypster/lorewiki/internal/config"
)

// Version is reported by the health endpoint.
var Version = "dev"

// SystemHandlers serves health and effective configuration.
type SystemHandlers struct {
	cfg           *config.Config
	imagesEnabled bool
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(cfg *config.Config, imagesEnabled bool) *SystemHandlers {
	return &SystemHandlers{cfg: cfg, imagesEnabled: imagesEnabled}
}

// ConfigResponse is the masked process configuration.
type ConfigResponse struct {
	StorageEngine   string `json:"storage_engine"`
	LLMProvider     string `json:"llm_provider"`
	LLMModel        string `json:"llm_model"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	EmbeddingModel  string `json:"embedding_model,omitempty"`
	ImageModel      string `json:"image_model"`
	ImagesEnabled   bool   `json:"images_enabled"`
	MaxValidations  int    `json:"max_validations"`
	SkipValidation  bool   `json:"skip_validation_default"`
}

// Health handles GET /api/health.
func (h *SystemHandlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": Version})
}

// GetConfig handles GET /api/config. API keys are masked.
func (h *SystemHandlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		StorageEngine:   h.cfg.Storage.Engine,
		LLMProvider:     h.cfg.LLM.Provider,
		LLMModel:        h.cfg.LLM.Model,
		OpenAIAPIKey:    MaskAPIKey(h.cfg.LLM.OpenAIAPIKey),
		AnthropicAPIKey: MaskAPIKey(h.cfg.LLM.AnthropicAPIKey),
		EmbeddingModel:  h.cfg.LLM.EmbeddingModel,
		ImageModel:      h.cfg.Image.Model,
		ImagesEnabled:   h.imagesEnabled,
		MaxValidations:  h.cfg.Engine.MaxValidations,
		SkipValidation:  h.cfg.Engine.SkipValidationDefault,
	})
}
