package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jo-hoe/sandmap/internal/common"
	"github.com/jo-hoe/sandmap/internal/core"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *core.ServiceConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*core.ServiceConfig, error) {
	c.configOnce.Do(func() {
		cfg, err := core.LoadConfig(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		logger, err := common.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			c.configErr = err
			return
		}
		slog.SetDefault(logger)
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join(".", "config.yaml")
}

// withService opens the record store, object store and queue described by the
// configuration for the duration of fn.
func (c *commandContext) withService(fn func(*core.CoreService) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	service, err := core.NewCoreService(cfg)
	if err != nil {
		return fmt.Errorf("open sandmap services: %w", err)
	}
	defer func() {
		if cerr := service.Close(); cerr != nil {
			slog.Warn("failed to close sandmap services", "error", cerr)
		}
	}()
	return fn(service)
}
