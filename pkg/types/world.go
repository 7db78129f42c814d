package types

// WorldConfig is the per-world configuration persisted as world.yaml.
type WorldConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	SystemPromptPlanner string `yaml:"system_prompt_planner" json:"system_prompt_planner"`
	SystemPromptWriter  string `yaml:"system_prompt_writer" json:"system_prompt_writer"`
	SystemPromptImage   string `yaml:"system_prompt_image" json:"system_prompt_image"`

	// Style is free-form writing style guidance appended to WRITE prompts.
	Style string `yaml:"style,omitempty" json:"style,omitempty"`

	// LLMModel and ImageModel override the process-wide defaults when set.
	LLMModel   string `yaml:"llm_model,omitempty" json:"llm_model,omitempty"`
	ImageModel string `yaml:"image_model,omitempty" json:"image_model,omitempty"`

	GenerateImages bool `yaml:"generate_images" json:"generate_images"`
}

// Default system prompts used when a world does not configure its own.
const (
	DefaultPlannerPrompt = "You are a creative world-building assistant. Your goal is to outline consistent and interesting wiki articles."
	DefaultWriterPrompt  = "You are an encyclopedic writer. Write detailed, dry, but descriptive wiki articles based on the provided outline."
	DefaultImagePrompt   = "You are an expert art director. Create detailed visual descriptions for concept art."
	DefaultWritingStyle  = "Encyclopedic, dry, descriptive. Use Markdown for formatting."
)

// DefaultWorldConfig returns the configuration used for worlds that have no
// world.yaml on disk.
func DefaultWorldConfig(name string) WorldConfig {
	return WorldConfig{
		Name:                name,
		SystemPromptPlanner: DefaultPlannerPrompt,
		SystemPromptWriter:  DefaultWriterPrompt,
		SystemPromptImage:   DefaultImagePrompt,
		Style:               DefaultWritingStyle,
	}
}

// WithDefaults fills empty prompt and style fields from DefaultWorldConfig.
func (c WorldConfig) WithDefaults() WorldConfig {
	d := DefaultWorldConfig(c.Name)
	if c.SystemPromptPlanner == "" {
		c.SystemPromptPlanner = d.SystemPromptPlanner
	}
	if c.SystemPromptWriter == "" {
		c.SystemPromptWriter = d.SystemPromptWriter
	}
	if c.SystemPromptImage == "" {
		c.SystemPromptImage = d.SystemPromptImage
	}
	if c.Style == "" {
		c.Style = d.Style
	}
	return c
}

// WorldDesign is a world configuration proposed by the world designer,
// together with the seed article that should start the wiki.
type WorldDesign struct {
	WorldConfig
	SeedArticleTitle       string `json:"seed_article_title"`
	SeedArticleDescription string `json:"seed_article_description"`
}
