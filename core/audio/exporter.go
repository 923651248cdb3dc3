package audio

import (
	"context"
	"fmt"
	"path/filepath"

	"RingCut/logger"

	"golang.org/x/sync/errgroup"
)

// ExportResult lists the files produced by one export.
type ExportResult struct {
	WAVPath string
	MP3Path string // empty when MP3 conversion failed
	MP3Err  error
}

// Exporter renders a clip as WAV plus an MP3 copy.
type Exporter struct {
	proc   Processor
	tagger *Tagger
}

// NewExporter returns an Exporter. A nil tagger skips ID3 tagging.
func NewExporter(proc Processor, tagger *Tagger) *Exporter {
	return &Exporter{proc: proc, tagger: tagger}
}

// Export writes <dir>/<base>.wav and <dir>/<base>.mp3 concurrently.
// The WAV is required; an MP3 failure is logged and reported through ExportResult.MP3Err.
func (e *Exporter) Export(ctx context.Context, in, dir, base string, opts ClipOptions, tag *TagInfo) (*ExportResult, error) {
	res := &ExportResult{}
	wavPath := filepath.Join(dir, base+".wav")
	mp3Path := filepath.Join(dir, base+".mp3")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)

	g.Go(func() error {
		if err := e.proc.ExtractClip(ctx, in, wavPath, opts); err != nil {
			return fmt.Errorf("wav export: %w", err)
		}
		res.WAVPath = wavPath
		return nil
	})

	g.Go(func() error {
		if err := e.proc.ExtractClip(ctx, in, mp3Path, opts); err != nil {
			res.MP3Err = err
			return nil
		}
		if e.tagger != nil && tag != nil {
			if err := e.tagger.Tag(mp3Path, *tag); err != nil {
				logger.Warn("failed to tag mp3", logger.String("path", mp3Path), logger.ErrorField(err))
			}
		}
		res.MP3Path = mp3Path
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if res.MP3Err != nil {
		logger.Warn("mp3 conversion failed, keeping wav only",
			logger.String("base", base), logger.ErrorField(res.MP3Err))
	}
	return res, nil
}
