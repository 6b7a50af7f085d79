package config

import (
	"fmt"
	"os"

	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/utils"
)

// AgentSpec describes one research agent from agents.json.
type AgentSpec struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Kind           string             `json:"kind"` // "http" or "simulated"
	Endpoint       string             `json:"endpoint,omitempty"`
	AuthEnv        string             `json:"auth_env,omitempty"` // env var holding the API key
	TimeoutSeconds int                `json:"timeout_seconds"`
	Capabilities   map[string]float64 `json:"capabilities"` // topic -> rank bonus
	SourcePriority float64            `json:"source_priority"`
	Enabled        bool               `json:"enabled"`
}

// AgentsConfig is the agents.json file shape.
type AgentsConfig struct {
	Agents []AgentSpec `json:"agents"`
}

// PipelineLimits collects the engine-level resource bounds.
type PipelineLimits struct {
	MaxConcurrentRequests  int `json:"max_concurrent_requests"`
	PipelineTimeoutSeconds int `json:"pipeline_timeout_seconds"`
	AgentTimeoutSeconds    int `json:"agent_timeout_seconds"`
	MaxItems               int `json:"max_items"`
	MaxPerSource           int `json:"max_per_source"`
}

// PipelinesConfig is the pipelines.json file shape: scoring weights, stage
// toggles, and resource limits.
type PipelinesConfig struct {
	Scoring domain.ScoringWeights `json:"scoring"`
	Stages  map[string]bool       `json:"stages"` // stage name -> enabled
	Limits  PipelineLimits        `json:"limits"`
}

// PersonaSpec describes one expert persona from personas.json.
type PersonaSpec struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Notes         string             `json:"notes,omitempty"`
	SystemPrompt  string             `json:"system_prompt,omitempty"`
	Dimensions    map[string]float64 `json:"dimensions"` // dimension -> weight
	KeepThreshold float64            `json:"keep_threshold"`
	ConfidenceMin float64            `json:"confidence_min"`
	ConfidenceMax float64            `json:"confidence_max"`
	Influence     float64            `json:"influence"` // chair arbitration weight
}

// PersonasConfig is the personas.json file shape.
type PersonasConfig struct {
	Chair    string        `json:"chair"` // persona id with arbitration authority
	Personas []PersonaSpec `json:"personas"`
}

// DefaultPipelines returns the built-in pipeline configuration used when no
// pipelines.json is present.
func DefaultPipelines() PipelinesConfig {
	return PipelinesConfig{
		Scoring: domain.DefaultScoringWeights(),
		Stages: map[string]bool{
			"credibility":   true,
			"corroboration": true,
			"urgency":       true,
			"diversity":     true,
			"enrichment":    true,
			"clustering":    true,
			"georisk":       true,
			"trends":        true,
			"editorial":     true,
		},
		Limits: PipelineLimits{
			MaxConcurrentRequests:  4,
			PipelineTimeoutSeconds: 120,
			AgentTimeoutSeconds:    20,
			MaxItems:               8,
			MaxPerSource:           3,
		},
	}
}

// LoadAgents parses agents.json (hjson-tolerant: comments and trailing commas
// are allowed in operator files).
func LoadAgents(path string) (*AgentsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents config: %w", err)
	}
	var cfg AgentsConfig
	if err := utils.ParseHJSONToStruct(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agents config: %w", err)
	}
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("agents config %s defines no agents", path)
	}
	for i := range cfg.Agents {
		if cfg.Agents[i].ID == "" {
			return nil, fmt.Errorf("agents config %s: agent %d has no id", path, i)
		}
		if cfg.Agents[i].TimeoutSeconds <= 0 {
			cfg.Agents[i].TimeoutSeconds = 15
		}
	}
	return &cfg, nil
}

// LoadPipelines parses pipelines.json and validates the scoring weights.
// Configs whose weights do not sum to 1 are rejected at load time.
func LoadPipelines(path string) (*PipelinesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipelines config: %w", err)
	}
	cfg := DefaultPipelines()
	if err := utils.ParseHJSONToStruct(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipelines config: %w", err)
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("pipelines config %s rejected: %w", path, err)
	}
	if cfg.Limits.MaxConcurrentRequests <= 0 {
		cfg.Limits.MaxConcurrentRequests = 4
	}
	if cfg.Limits.PipelineTimeoutSeconds <= 0 {
		cfg.Limits.PipelineTimeoutSeconds = 120
	}
	return &cfg, nil
}

// LoadPersonas parses personas.json.
func LoadPersonas(path string) (*PersonasConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas config: %w", err)
	}
	var cfg PersonasConfig
	if err := utils.ParseHJSONToStruct(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse personas config: %w", err)
	}
	if len(cfg.Personas) == 0 {
		return nil, fmt.Errorf("personas config %s defines no personas", path)
	}
	for i := range cfg.Personas {
		p := &cfg.Personas[i]
		if p.KeepThreshold <= 0 {
			p.KeepThreshold = 0.5
		}
		if p.ConfidenceMax <= 0 {
			p.ConfidenceMax = 0.95
		}
		if p.Influence <= 0 {
			p.Influence = 1.0
		}
	}
	return &cfg, nil
}
