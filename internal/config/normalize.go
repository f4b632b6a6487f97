package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeMQTT()
	if err := c.normalizeScratch(); err != nil {
		return err
	}
	c.normalizeDaemon()
	c.normalizeCameras()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = 10
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.ProcessLogMaxMB <= 0 {
		c.Logging.ProcessLogMaxMB = defaultProcessLogMaxMB
	}
}

func (c *Config) normalizeMQTT() {
	c.MQTT.Host = strings.TrimSpace(c.MQTT.Host)
	if c.MQTT.Host == "" {
		c.MQTT.Host = defaultMQTTHost
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = defaultMQTTPort
	}
	if c.MQTT.Keepalive <= 0 {
		c.MQTT.Keepalive = defaultMQTTKeepalive
	}
	c.MQTT.ClientID = strings.TrimSpace(c.MQTT.ClientID)
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultMQTTClientID
	}
	if c.MQTT.Password == "" {
		if value, ok := os.LookupEnv("SXVRS_MQTT_PASSWORD"); ok {
			c.MQTT.Password = value
		}
	}
	c.MQTT.TopicPublish = strings.TrimSpace(c.MQTT.TopicPublish)
	if c.MQTT.TopicPublish == "" {
		c.MQTT.TopicPublish = defaultMQTTTopicPublish
	}
	c.MQTT.TopicSubscribe = strings.TrimSpace(c.MQTT.TopicSubscribe)
	if c.MQTT.TopicSubscribe == "" {
		c.MQTT.TopicSubscribe = defaultMQTTTopicSubscribe
	}
	if c.MQTT.ConnectRetrySeconds <= 0 {
		c.MQTT.ConnectRetrySeconds = defaultMQTTConnectRetry
	}
	if c.MQTT.PublishTimeoutSeconds <= 0 {
		c.MQTT.PublishTimeoutSeconds = defaultMQTTPublishTimeoutSec
	}
}

func (c *Config) normalizeScratch() error {
	var err error
	if strings.TrimSpace(c.Scratch.Path) == "" {
		c.Scratch.Path = defaultScratchPath
	}
	if c.Scratch.Path, err = expandPath(c.Scratch.Path); err != nil {
		return fmt.Errorf("scratch.path: %w", err)
	}
	if c.Scratch.SizeMB <= 0 {
		c.Scratch.SizeMB = defaultScratchSizeMB
	}
	c.Scratch.MountCmd = strings.TrimSpace(c.Scratch.MountCmd)
	c.Scratch.UnmountCmd = strings.TrimSpace(c.Scratch.UnmountCmd)
	return nil
}

func (c *Config) normalizeDaemon() {
	if c.Daemon.PollIntervalSeconds <= 0 {
		c.Daemon.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Daemon.StopTimeoutSeconds < 0 {
		c.Daemon.StopTimeoutSeconds = 0
	}
	if c.Daemon.KillGraceSeconds <= 0 {
		c.Daemon.KillGraceSeconds = defaultKillGraceSeconds
	}
}

func (c *Config) normalizeCameras() {
	for i := range c.Cameras {
		c.Cameras[i].Name = strings.TrimSpace(c.Cameras[i].Name)
	}
}
