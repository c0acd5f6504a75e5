package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"callpanel/internal/client"
	"callpanel/internal/config"
	"callpanel/internal/record"
)

type globalFlags struct {
	config    string
	api       string
	actorID   string
	actorName string
	json      bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiAddress() string {
	if addr := strings.TrimSpace(c.flags.api); addr != "" {
		return addr
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.APIBind
	}
	return ""
}

func (c *commandContext) actor() record.Actor {
	actor := record.Actor{
		ID:   strings.TrimSpace(c.flags.actorID),
		Name: strings.TrimSpace(c.flags.actorName),
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return actor
	}
	if actor.ID == "" {
		actor.ID = cfg.Client.ActorID
		if actor.Name == "" {
			actor.Name = cfg.Client.ActorName
		}
	}
	return actor
}

func (c *commandContext) jsonOutput() bool {
	return c.flags.json
}

func (c *commandContext) newClient() (*client.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return client.New(c.apiAddress(),
		client.WithToken(cfg.Paths.APIToken),
		client.WithActor(c.actor()),
	)
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	return c.wrapAPIError(fn(cl))
}

func (c *commandContext) wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	if client.IsAPIUnavailable(err) {
		return fmt.Errorf("connect to daemon: nothing listening at %s; start it with `callpanel serve`", c.apiAddress())
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return formatAPIError(apiErr)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseRecordID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", value)
	}
	return id, nil
}

func parseFilter(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid filter %q", value)
	}
	return n, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
