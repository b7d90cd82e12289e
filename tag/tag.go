// Package tag embeds the recovered metadata and cover art into decoded
// audio files, mirroring what the streaming client strips out.
package tag

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/WindustH/ncmpp"
	"github.com/WindustH/ncmpp/ncm"
	"github.com/bogem/id3v2"
	"github.com/cenkalti/backoff/v4"
	flac "github.com/go-flac/go-flac"
)

var pngHeader = []byte{137, 80, 78, 71, 13, 10, 26, 10}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Embed writes title, album, artists and the front cover into audioPath.
// When cover is nil and the metadata carries an album art URL, the image
// is fetched over HTTP. Formats other than mp3 and flac are skipped.
func Embed(log ncmpp.Logger, audioPath string, meta *ncm.Metadata, cover []byte) error {
	if meta == nil {
		return nil
	}

	if cover == nil && meta.AlbumPic != "" {
		var err error
		if cover, err = fetchAlbumArt(meta.AlbumPic); err != nil {
			log.WithError(err).Warnf("failed fetching album art, tagging without cover")
		}
	}

	switch strings.ToLower(filepath.Ext(audioPath)) {
	case ".mp3":
		return embedMP3(audioPath, meta, cover)
	case ".flac":
		return embedFLAC(audioPath, meta, cover)
	default:
		log.Debugf("no tag support for %s, skipping", filepath.Ext(audioPath))
		return nil
	}
}

// pictureMIME sniffs the image type from its leading bytes.
func pictureMIME(data []byte) string {
	if len(data) >= len(pngHeader) && string(data[:len(pngHeader)]) == string(pngHeader) {
		return "image/png"
	}
	return "image/jpeg"
}

func fetchAlbumArt(url string) ([]byte, error) {
	var data []byte

	op := func() error {
		res, err := httpClient.Get(url)
		if err != nil {
			return err
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("remote returned %s", res.Status))
		} else if res.StatusCode != http.StatusOK {
			return fmt.Errorf("remote returned %s", res.Status)
		}

		data, err = io.ReadAll(res.Body)
		return err
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("failed downloading album art: %w", err)
	}
	return data, nil
}

func embedMP3(path string, meta *ncm.Metadata, cover []byte) error {
	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed opening id3 tag: %w", err)
	}
	defer func() { _ = id3.Close() }()

	if meta.MusicName != "" && id3.GetTextFrame("TIT2").Text == "" {
		id3.AddTextFrame("TIT2", id3v2.EncodingUTF8, meta.MusicName)
	}
	if meta.Album != "" && id3.GetTextFrame("TALB").Text == "" {
		id3.AddTextFrame("TALB", id3v2.EncodingUTF8, meta.Album)
	}
	if id3.GetTextFrame("TPE1").Text == "" {
		for _, name := range meta.ArtistNames() {
			id3.AddTextFrame("TPE1", id3v2.EncodingUTF8, name)
		}
	}

	if cover != nil {
		id3.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingISO,
			MimeType:    pictureMIME(cover),
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     cover,
		})
	}

	if err := id3.Save(); err != nil {
		return fmt.Errorf("failed saving id3 tag: %w", err)
	}
	return nil
}

func embedFLAC(path string, meta *ncm.Metadata, cover []byte) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed parsing flac file: %w", err)
	}

	if cover != nil {
		if err := addFLACPicture(f, cover); err != nil {
			return err
		}
	}
	if err := addFLACComments(f, meta); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed saving flac file: %w", err)
	}
	return nil
}
