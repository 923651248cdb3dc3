package audio

import (
	"fmt"

	"github.com/bogem/id3v2"
)

// TagInfo holds the ID3 fields written to exported MP3s.
type TagInfo struct {
	Title   string
	Artist  string
	Album   string
	Comment string
}

// Tagger writes ID3v2 tags.
type Tagger struct{}

// NewTagger returns a Tagger.
func NewTagger() *Tagger {
	return &Tagger{}
}

// Tag replaces the text frames of the MP3 at path with info. Empty fields are left out.
func (t *Tagger) Tag(path string, info TagInfo) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tag of %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if info.Title != "" {
		tag.SetTitle(info.Title)
	}
	if info.Artist != "" {
		tag.SetArtist(info.Artist)
	}
	if info.Album != "" {
		tag.SetAlbum(info.Album)
	}
	if info.Comment != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "ringcut",
			Text:        info.Comment,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tag of %s: %w", path, err)
	}
	return nil
}

// ReadTitle returns the title frame of the MP3 at path.
func (t *Tagger) ReadTitle(path string) (string, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"Title"}})
	if err != nil {
		return "", fmt.Errorf("open tag of %s: %w", path, err)
	}
	defer tag.Close()
	return tag.Title(), nil
}
