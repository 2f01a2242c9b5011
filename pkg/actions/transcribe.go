package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/action"
	"github.com/grovetools/kw/pkg/logging"
	"github.com/grovetools/kw/pkg/models"
)

// Transcriber turns an audio or video resource into text.
type Transcriber interface {
	Transcribe(ctx context.Context, item *models.Item, language string) (string, error)
}

// TranscriberFunc adapts a function to the Transcriber interface.
type TranscriberFunc func(ctx context.Context, item *models.Item, language string) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, item *models.Item, language string) (string, error) {
	return f(ctx, item, language)
}

// Transcribe delegates to t and stores the transcript as a plaintext doc.
func Transcribe(t Transcriber) *action.Spec {
	return &action.Spec{
		Name:          "transcribe",
		Description:   "Transcribe the audio of a media resource.",
		Preconditions: []string{"is_media_resource"},
		Arity:         action.Single,
		Version:       "1",
		Params: []action.Param{{
			Name:        "language",
			Description: "Spoken language hint, as an ISO 639-1 code.",
		}},
		Body: func(ctx context.Context, in action.Input) ([]models.Payload, error) {
			item := in.Item()
			text, err := t.Transcribe(ctx, item, in.Param("language"))
			if err != nil {
				return nil, fmt.Errorf("transcribe %s: %w", item.DisplayTitle(), err)
			}
			if strings.TrimSpace(text) == "" {
				return nil, fmt.Errorf("no transcript for %s", item.DisplayTitle())
			}
			return []models.Payload{{
				Type:   models.TypeDoc,
				Format: models.FormatPlaintext,
				Title:  item.DisplayTitle() + " (transcription)",
				URL:    item.URL,
				Body:   text,
			}}, nil
		},
	}
}

// TranscriptCache keeps transcripts on disk so a media resource is only
// transcribed once, even across workspace resets of the action cache.
type TranscriptCache struct {
	dir  string
	next Transcriber
	log  *logrus.Entry
}

// NewTranscriptCache wraps next with a cache stored under dir.
func NewTranscriptCache(dir string, next Transcriber, log *logrus.Entry) *TranscriptCache {
	return &TranscriptCache{
		dir:  dir,
		next: next,
		log:  logging.Component(log, "transcripts"),
	}
}

func (c *TranscriptCache) path(item *models.Item, language string) string {
	source := item.URL
	if source == "" {
		source = item.Identity
	}
	sum := sha256.Sum256([]byte(source + "\x00" + language))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+".transcript.txt")
}

// Transcribe returns the cached transcript or asks the wrapped transcriber.
func (c *TranscriptCache) Transcribe(ctx context.Context, item *models.Item, language string) (string, error) {
	p := c.path(item, language)
	data, err := os.ReadFile(p)
	if err == nil {
		c.log.WithField("path", p).Debug("transcript cache hit")
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read transcript cache: %w", err)
	}

	text, err := c.next.Transcribe(ctx, item, language)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("create transcript cache: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write transcript cache: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("write transcript cache: %w", err)
	}
	return text, nil
}
