package config

// ConfigDiff describes the settings that changed between two configs and
// can be applied without a restart.
type ConfigDiff struct {
	ThresholdChanged bool
	NewThreshold     float64

	MinConfidenceChanged bool
	NewMinConfidence     float64

	AutostopChanged bool
	NewAutostop     bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists sections that changed but are only read at startup.
	RestartRequired []string
}

// Changed reports whether any live-reloadable setting differs.
func (d ConfigDiff) Changed() bool {
	return d.ThresholdChanged || d.MinConfidenceChanged || d.AutostopChanged || d.LogLevelChanged
}

// Diff compares old and new and reports what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff
	if old == nil || new == nil {
		return d
	}

	if old.Trigger.Threshold() != new.Trigger.Threshold() {
		d.ThresholdChanged = true
		d.NewThreshold = new.Trigger.Threshold()
	}
	if old.Classifier.MinConfidence != new.Classifier.MinConfidence {
		d.MinConfidenceChanged = true
		d.NewMinConfidence = new.Classifier.MinConfidence
	}
	if old.Trigger.Autostop != new.Trigger.Autostop {
		d.AutostopChanged = true
		d.NewAutostop = new.Trigger.Autostop
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Audio.Source.Name != new.Audio.Source.Name ||
		old.Audio.SampleRate != new.Audio.SampleRate ||
		old.Audio.FrameSize != new.Audio.FrameSize ||
		old.Audio.Channels != new.Audio.Channels ||
		old.Audio.Channel != new.Audio.Channel {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Trigger.HistoryFrames != new.Trigger.HistoryFrames ||
		old.Trigger.InputSeconds != new.Trigger.InputSeconds {
		d.RestartRequired = append(d.RestartRequired, "trigger")
	}
	if old.Classifier.Provider.Name != new.Classifier.Provider.Name ||
		old.Classifier.Provider.BaseURL != new.Classifier.Provider.BaseURL ||
		old.Classifier.Provider.Model != new.Classifier.Provider.Model ||
		len(old.Classifier.Fallbacks) != len(new.Classifier.Fallbacks) {
		d.RestartRequired = append(d.RestartRequired, "classifier.provider")
	}
	if old.Notify.NATS != new.Notify.NATS ||
		old.Notify.Redis != new.Notify.Redis ||
		old.Notify.WebSocket.Enabled != new.Notify.WebSocket.Enabled ||
		old.Notify.WebSocket.Path != new.Notify.WebSocket.Path {
		d.RestartRequired = append(d.RestartRequired, "notify")
	}
	if old.Command != new.Command {
		d.RestartRequired = append(d.RestartRequired, "command")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	return d
}
