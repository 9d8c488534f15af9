package main

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"onecam/internal/engine"
	"onecam/internal/infra"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *infra.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*infra.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = infra.LoadConfig(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cfg *infra.Config) zerolog.Logger {
	return infra.NewLogger(cfg.AppEnv)
}

// engineParts builds the engine client, history poller and workflow template
// shared by every command.
func engineParts(cfg *infra.Config, logger zerolog.Logger) (*engine.Client, *engine.Poller, *engine.Template, error) {
	tmpl, err := engine.LoadTemplate(cfg.EngineWorkflowPath)
	if err != nil {
		return nil, nil, nil, err
	}
	client := engine.NewClient(engine.Options{
		BaseURL:  cfg.EngineBaseURL,
		ClientID: cfg.EngineClientID,
		Timeout:  cfg.EngineTimeout,
	})
	poller := &engine.Poller{
		Source:   client,
		Attempts: cfg.EnginePollAttempts,
		Interval: cfg.EnginePollInterval,
		Logger:   infra.ComponentLogger(logger, "poller"),
	}
	return client, poller, tmpl, nil
}
