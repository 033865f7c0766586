package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"clovis/internal/apiclient"
	"clovis/internal/config"
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

func (c *commandContext) client() (*apiclient.Client, error) {
	if c.addressFlag != nil && strings.TrimSpace(*c.addressFlag) != "" {
		return apiclient.NewForAddress(*c.addressFlag)
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return apiclient.New(cfg)
}

func (c *commandContext) withClient(fn func(*apiclient.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		if errors.Is(err, apiclient.ErrDaemonUnavailable) {
			return fmt.Errorf("%w; start it with `clovisd`", err)
		}
		return err
	}
	return nil
}
