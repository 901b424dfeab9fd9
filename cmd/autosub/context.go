package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"autosub/internal/api"
	"autosub/internal/config"
)

type commandContext struct {
	addressFlag *string
	configFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addressFlag, configFlag *string) *commandContext {
	return &commandContext{
		addressFlag: addressFlag,
		configFlag:  configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// client builds an API client for the daemon. The --address flag wins over
// the configured bind address.
func (c *commandContext) client() *api.Client {
	if c.addressFlag != nil && strings.TrimSpace(*c.addressFlag) != "" {
		return api.NewClient(*c.addressFlag)
	}
	if cfg := c.configValue(); cfg != nil {
		return api.NewClient(cfg.API.Bind)
	}
	return api.NewClient("")
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
