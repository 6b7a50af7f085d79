package config

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
)

// PipelinesHolder wraps the pipelines config behind a read-mostly lock so the
// scoring table can be swapped on SIGHUP without restarting in-flight requests.
type PipelinesHolder struct {
	mu   sync.RWMutex
	path string
	cfg  PipelinesConfig
}

// NewPipelinesHolder loads the initial config from path, or falls back to the
// built-in defaults when the file is absent.
func NewPipelinesHolder(path string) *PipelinesHolder {
	h := &PipelinesHolder{path: path, cfg: DefaultPipelines()}
	if path == "" {
		return h
	}
	if cfg, err := LoadPipelines(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Using default pipeline config")
	} else {
		h.cfg = *cfg
	}
	return h
}

// Current returns a copy of the active pipeline configuration.
func (h *PipelinesHolder) Current() PipelinesConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cfg := h.cfg
	// Copy the stage map so callers cannot mutate shared state.
	stages := make(map[string]bool, len(cfg.Stages))
	for k, v := range cfg.Stages {
		stages[k] = v
	}
	cfg.Stages = stages
	return cfg
}

// Reload re-reads the config file. A bad reload is logged and ignored, keeping
// the previous table in place.
func (h *PipelinesHolder) Reload() {
	if h.path == "" {
		return
	}
	cfg, err := LoadPipelines(h.path)
	if err != nil {
		log.Error().Err(err).Str("path", h.path).Msg("Config reload rejected, keeping previous")
		return
	}
	h.mu.Lock()
	h.cfg = *cfg
	h.mu.Unlock()
	log.Info().Str("path", h.path).Msg("Pipeline config reloaded")
}

// WatchSIGHUP reloads the config whenever the process receives SIGHUP, until
// ctx is canceled.
func (h *PipelinesHolder) WatchSIGHUP(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				h.Reload()
			}
		}
	}()
}
