package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes YAML configuration from r. Unknown fields are
// rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// knownSources and knownClassifiers are the built-in provider names.
// Unknown names only produce a warning because the registry may be extended.
var (
	knownSources     = []string{"pcm", "portaudio"}
	knownClassifiers = []string{"remote", "whisper"}
)

// Validate checks cfg for semantic errors. All errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	a := cfg.Audio
	if a.Source.Name == "" {
		errs = append(errs, errors.New("audio.source.name is required"))
	} else {
		validateProviderName("audio.source", a.Source.Name, knownSources)
	}
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", a.SampleRate))
	} else if a.DownsampleFactor() == 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be 44100 or a multiple of %d", a.SampleRate, a.ModelSampleRate))
	}
	if a.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	} else if d := a.DownsampleFactor(); d > 0 && a.FrameSize < d {
		errs = append(errs, fmt.Errorf("audio.frame_size %d is smaller than the downsample factor %d", a.FrameSize, d))
	}
	if a.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels %d must be positive", a.Channels))
	} else if a.Channel < 0 || a.Channel >= a.Channels {
		errs = append(errs, fmt.Errorf("audio.channel %d out of range [0, %d)", a.Channel, a.Channels))
	}
	if a.ModelSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.model_sample_rate %d must be positive", a.ModelSampleRate))
	}
	if a.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("audio.queue_size %d must be at least 1", a.QueueSize))
	}

	t := cfg.Trigger
	if th := t.Threshold(); th < 0 || th > 100 {
		errs = append(errs, fmt.Errorf("trigger.volume_threshold %g out of range [0, 100]", th))
	}
	if t.HistoryFrames < 0 {
		errs = append(errs, fmt.Errorf("trigger.history_frames %d must not be negative", t.HistoryFrames))
	}
	if t.InputSeconds <= 0 {
		errs = append(errs, fmt.Errorf("trigger.input_seconds %g must be positive", t.InputSeconds))
	} else if a.FrameSize > 0 && a.SampleRate > 0 {
		target := cfg.TargetFrames()
		if target < 1 {
			errs = append(errs, fmt.Errorf("trigger.input_seconds %g is shorter than one frame", t.InputSeconds))
		} else if t.HistoryFrames > target {
			errs = append(errs, fmt.Errorf("trigger.history_frames %d exceeds the recording length of %d frames", t.HistoryFrames, target))
		}
	}

	c := cfg.Classifier
	if c.Provider.Name == "" {
		errs = append(errs, errors.New("classifier.provider.name is required"))
	} else {
		validateProviderName("classifier.provider", c.Provider.Name, knownClassifiers)
	}
	for i, fb := range c.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("classifier.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName(fmt.Sprintf("classifier.fallbacks[%d]", i), fb.Name, knownClassifiers)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("classifier.min_confidence %g out of range [0, 1]", c.MinConfidence))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("classifier.timeout %s must not be negative", c.Timeout))
	}
	seen := make(map[string]bool, len(c.Labels))
	for i, l := range c.Labels {
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("classifier.labels[%d].name is required", i))
			continue
		}
		if seen[l.Name] {
			errs = append(errs, fmt.Errorf("classifier.labels: duplicate label %q", l.Name))
		}
		seen[l.Name] = true
	}

	n := cfg.Notify
	if n.NATS.URL != "" {
		for _, u := range strings.Split(n.NATS.URL, ",") {
			if _, err := url.Parse(strings.TrimSpace(u)); err != nil {
				errs = append(errs, fmt.Errorf("notify.nats.url: %w", err))
			}
		}
	}
	if n.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("notify.redis.db %d must not be negative", n.Redis.DB))
	}
	if n.WebSocket.Enabled && !strings.HasPrefix(n.WebSocket.Path, "/") {
		errs = append(errs, fmt.Errorf("notify.websocket.path %q must start with /", n.WebSocket.Path))
	}

	if cfg.Control.NATSSubject != "" && n.NATS.URL == "" {
		errs = append(errs, errors.New("control.nats_subject requires notify.nats.url"))
	}

	if cfg.Command.Workers < 0 {
		errs = append(errs, fmt.Errorf("command.workers %d must not be negative", cfg.Command.Workers))
	}
	if cfg.Command.Timeout < 0 {
		errs = append(errs, fmt.Errorf("command.timeout %s must not be negative", cfg.Command.Timeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning when name is not one of the built-in
// provider names.
func validateProviderName(field, name string, known []string) {
	for _, k := range known {
		if k == name {
			return
		}
	}
	slog.Warn("config: unknown provider name; make sure it is registered",
		"field", field, "name", name, "known", known)
}
