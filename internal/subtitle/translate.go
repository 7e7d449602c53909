// Package subtitle translates SRT transcripts entry by entry.
package subtitle

import (
	"context"
	"fmt"
	"strings"

	"github.com/asticode/go-astisub"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/metrics"
	"github.com/subgen/api/internal/model"
	"github.com/subgen/api/internal/storage"
)

// TextTranslator translates the text of one subtitle entry.
type TextTranslator interface {
	Translate(ctx context.Context, text string, lang model.Language) (string, error)
}

// Translator rewrites SRT files into a target language.
type Translator struct {
	text   TextTranslator
	logger zerolog.Logger
}

func NewTranslator(text TextTranslator) *Translator {
	return &Translator{
		text:   text,
		logger: logging.WithComponent("translator"),
	}
}

// TranslateFile writes the translated sibling of srtPath and returns its
// path. Entry count and timings are preserved. Each entry is translated as
// one text; an entry whose translation fails is kept unchanged. An
// unreadable input or a cancelled ctx returns an error and writes nothing.
func (t *Translator) TranslateFile(ctx context.Context, srtPath string, lang model.Language) (string, error) {
	subs, err := astisub.OpenFile(srtPath)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}

	failed := 0
	for i, item := range subs.Items {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		original := entryText(item)
		if strings.TrimSpace(original) == "" {
			continue
		}

		translated, err := t.text.Translate(ctx, original, lang)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			failed++
			metrics.TranslationEntryFailures.Inc()
			t.logger.Warn().Err(err).Int("entry", i+1).Str("file", srtPath).Msg("translation failed, keeping original entry")
			continue
		}
		item.Lines = textLines(translated)
	}

	outPath := storage.TranslatedPathFor(srtPath)
	if err := writeSRT(outPath, subs); err != nil {
		return "", err
	}

	t.logger.Info().
		Str("file", outPath).
		Str("language", string(lang)).
		Int("entries", len(subs.Items)).
		Int("failed_entries", failed).
		Msg("translation finished")
	return outPath, nil
}

// entryText joins the lines of an entry with newlines.
func entryText(item *astisub.Item) string {
	lines := make([]string, 0, len(item.Lines))
	for _, l := range item.Lines {
		parts := make([]string, 0, len(l.Items))
		for _, li := range l.Items {
			parts = append(parts, li.Text)
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n")
}

func textLines(text string) []astisub.Line {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]astisub.Line, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		lines = append(lines, astisub.Line{Items: []astisub.LineItem{{Text: r}}})
	}
	if len(lines) == 0 {
		lines = append(lines, astisub.Line{Items: []astisub.LineItem{{Text: strings.TrimSpace(text)}}})
	}
	return lines
}

func writeSRT(path string, subs *astisub.Subtitles) error {
	if len(subs.Items) == 0 {
		if err := renameio.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("write translated transcript: %w", err)
		}
		return nil
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create translated transcript: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	if err := subs.WriteToSRT(pf); err != nil {
		return fmt.Errorf("encode translated transcript: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit translated transcript: %w", err)
	}
	return nil
}
