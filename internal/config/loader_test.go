package config_test

import (
	"strings"
	"testing"

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: bananas\n",
			wantErr: "server.log_level",
		},
		{
			name:    "sample rate not a multiple of model rate",
			yaml:    "audio:\n  sample_rate: 22050\n",
			wantErr: "audio.sample_rate",
		},
		{
			name:    "channel out of range",
			yaml:    "audio:\n  channels: 2\n  channel: 2\n",
			wantErr: "audio.channel 2",
		},
		{
			name:    "threshold above 100",
			yaml:    "trigger:\n  volume_threshold: 101\n",
			wantErr: "trigger.volume_threshold",
		},
		{
			name:    "negative threshold",
			yaml:    "trigger:\n  volume_threshold: -1\n",
			wantErr: "trigger.volume_threshold",
		},
		{
			name:    "history longer than recording",
			yaml:    "trigger:\n  history_frames: 500\n",
			wantErr: "trigger.history_frames",
		},
		{
			name:    "recording shorter than a frame",
			yaml:    "trigger:\n  input_seconds: 0.001\n",
			wantErr: "shorter than one frame",
		},
		{
			name:    "min confidence above 1",
			yaml:    "classifier:\n  min_confidence: 1.5\n",
			wantErr: "classifier.min_confidence",
		},
		{
			name:    "duplicate labels",
			yaml:    "classifier:\n  labels:\n    - name: english\n    - name: english\n",
			wantErr: "duplicate label",
		},
		{
			name:    "fallback without name",
			yaml:    "classifier:\n  fallbacks:\n    - model: x\n",
			wantErr: "classifier.fallbacks[0].name",
		},
		{
			name:    "control over nats without nats",
			yaml:    "control:\n  nats_subject: langid.control\n",
			wantErr: "control.nats_subject",
		},
		{
			name:    "websocket path",
			yaml:    "notify:\n  websocket:\n    enabled: true\n    path: ws\n",
			wantErr: "notify.websocket.path",
		},
		{
			name:    "negative workers",
			yaml:    "command:\n  workers: -1\n",
			wantErr: "command.workers",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc := tc.yaml
			if !strings.Contains(doc, "classifier:") {
				doc += minimalYAML
			} else {
				doc = strings.Replace(doc, "classifier:\n", "classifier:\n  provider:\n    name: remote\n", 1)
			}
			_, err := config.LoadFromReader(strings.NewReader(doc))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error should mention %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_BoundaryValuesAccepted(t *testing.T) {
	t.Parallel()
	doc := `
trigger:
  volume_threshold: 100
classifier:
  provider:
    name: remote
  min_confidence: 1
`
	cfg := mustLoad(t, doc)
	if cfg.Trigger.Threshold() != 100 || cfg.Classifier.MinConfidence != 1 {
		t.Errorf("boundaries not kept: %+v %+v", cfg.Trigger, cfg.Classifier)
	}
}

func TestLoad_ZeroThresholdKept(t *testing.T) {
	t.Parallel()
	doc := `
trigger:
  volume_threshold: 0
classifier:
  provider:
    name: remote
`
	cfg := mustLoad(t, doc)
	if cfg.Trigger.Threshold() != 0 {
		t.Errorf("Threshold() = %g, want explicit 0 kept", cfg.Trigger.Threshold())
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	doc := `
server:
  log_level: loud
trigger:
  volume_threshold: 200
classifier:
  min_confidence: 2
`
	_, err := config.LoadFromReader(strings.NewReader(doc))
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.log_level", "trigger.volume_threshold", "classifier.min_confidence", "classifier.provider.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderNameIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	doc := `
audio:
  source:
    name: alsa-custom
classifier:
  provider:
    name: onnx-custom
`
	if _, err := config.LoadFromReader(strings.NewReader(doc)); err != nil {
		t.Fatalf("unknown provider names must not fail validation: %v", err)
	}
}
