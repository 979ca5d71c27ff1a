//go:build portaudio

package main

import (
	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/config"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio/source/portaudio"
)

func init() {
	extraRegistrations = append(extraRegistrations, func(reg *config.Registry) {
		reg.RegisterSource("portaudio", func(_ config.ProviderEntry, cfg source.Config) (source.Source, error) {
			return portaudio.New(cfg)
		})
	})
}
