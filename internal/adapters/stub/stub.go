// SPDX-License-Identifier: MIT

// Package stub provides placeholder implementations of the external service
// contracts. The daemon wires them in for integrations that are not linked
// into the build; a stage backed by a stub fails fast with a clear reason
// instead of crashing on a nil dependency.
package stub

import (
	"context"

	"github.com/ManuGH/mediaflow/internal/model"
)

func notConfigured(what string) error {
	return model.FatalExternal(what+" integration is not configured", nil)
}

// Media satisfies exec.MediaProcessor.
type Media struct{}

func (Media) Trim(context.Context, string, string, model.JSON) error {
	return notConfigured("media processing")
}

func (Media) ExtractAudio(context.Context, string, string) error {
	return notConfigured("media processing")
}

// Transcriber satisfies exec.Transcriber.
type Transcriber struct{}

func (Transcriber) Transcribe(context.Context, string, model.JSON) (model.JSON, error) {
	return nil, notConfigured("transcription")
}

// Topics satisfies exec.TopicExtractor.
type Topics struct{}

func (Topics) ExtractTopics(context.Context, model.JSON, model.JSON) (model.JSON, error) {
	return nil, notConfigured("topic extraction")
}

// Subtitles satisfies exec.SubtitleGenerator.
type Subtitles struct{}

func (Subtitles) Generate(context.Context, model.JSON, string, model.JSON) (map[string]string, error) {
	return nil, notConfigured("subtitle generation")
}
