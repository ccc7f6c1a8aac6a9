package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateRenderer(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be a full topic URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.HistoryDB == "" {
		return errors.New("paths.history_db must be set")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	for name, raw := range map[string]string{
		"catalog.base_url":   c.Catalog.BaseURL,
		"catalog.search_url": c.Catalog.SearchURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Catalog.NavigationTimeoutSeconds <= 0 {
		return errors.New("catalog.navigation_timeout_seconds must be positive")
	}
	if c.Catalog.DownloadTimeoutSeconds <= 0 {
		return errors.New("catalog.download_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRenderer() error {
	if err := ensurePositiveMap(map[string]int{
		"renderer.timeout_seconds": c.Renderer.TimeoutSeconds,
		"renderer.width":           c.Renderer.Width,
		"renderer.height":          c.Renderer.Height,
		"renderer.step_ceiling":    c.Renderer.StepCeiling,
	}); err != nil {
		return err
	}
	if c.Renderer.MinArtifactBytes < 0 {
		return errors.New("renderer.min_artifact_bytes must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
