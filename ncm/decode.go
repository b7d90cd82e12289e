package ncm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/WindustH/ncmpp"
)

// Container regions, in the only order they may be visited:
// header, key block, metadata block, gap, cover block, audio payload.
const (
	// Containers start with "CTENFDAM" followed by two reserved bytes.
	// Real-world files vary here, so the magic is only checked in
	// strict mode.
	headerLen = 10

	// Unvalidated checksum/reserved region between metadata and cover.
	coverGapLen = 9

	// Audio is descrambled in fixed chunks. The keystream index resets
	// at every chunk, which is only sound because 0x8000 is a multiple
	// of the 256-byte table period. Not a tunable.
	audioChunkSize = 0x8000
)

var magicHeader = []byte("CTENFDAM")

// Options control the decode of a single container.
type Options struct {
	// Log receives progress diagnostics. Defaults to a NullLogger.
	Log ncmpp.Logger

	// StrictMagic rejects containers whose first bytes are not the
	// expected magic. Off by default for compatibility with files
	// whose header bytes vary.
	StrictMagic bool

	// DefaultFormat is the audio extension used when the container
	// carries no metadata (or metadata without a format). When empty,
	// such containers fail with ErrMissingFormat.
	DefaultFormat string
}

// Result describes the files written by a successful decode.
type Result struct {
	// AudioPath is the descrambled audio stream, <outputBase>.<format>.
	AudioPath string

	// CoverPath is the extracted cover image, <outputBase>.jpg. Empty
	// when the container had no cover block.
	CoverPath string

	// Format is the audio extension the container declared (or the
	// configured default).
	Format string

	// Meta is the parsed metadata tree, nil when absent.
	Meta *Metadata
}

// DecodeFile recovers the audio stream, metadata and cover image from the
// container at inputPath. Outputs are written next to outputBase with the
// extension taken from the metadata. The decode is strictly sequential and
// aborts on the first failure; outputs are staged through temporary files
// so a failed decode leaves nothing behind.
func DecodeFile(inputPath, outputBase string, opts Options) (*Result, error) {
	if opts.Log == nil {
		opts.Log = &ncmpp.NullLogger{}
	}
	log := opts.Log.WithField("file", filepath.Base(inputPath))

	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed opening container: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := newReader(bufio.NewReader(f))

	if err := readHeader(r, opts.StrictMagic); err != nil {
		return nil, err
	}

	keyData, err := unwrapKeyData(r)
	if err != nil {
		return nil, fmt.Errorf("failed unwrapping key block: %w", err)
	}
	box, err := newKeyBox(keyData)
	if err != nil {
		return nil, err
	}

	meta, err := readMetadata(r)
	if err != nil {
		return nil, fmt.Errorf("failed unwrapping metadata block: %w", err)
	}

	// The audio extension must be known before the cover and payload
	// regions are consumed, because the output file is opened first.
	format, err := resolveFormat(meta, opts.DefaultFormat)
	if err != nil {
		return nil, err
	}
	log.Debugf("container format is %s", format)

	if err := r.skip(coverGapLen); err != nil {
		return nil, err
	}

	res := &Result{Format: format, Meta: meta}

	cover, err := readCover(r)
	if err != nil {
		return nil, err
	}
	if cover != nil {
		res.CoverPath = outputBase + ".jpg"
		if err := writeFileAtomic(res.CoverPath, bytes.NewReader(cover), nil); err != nil {
			return nil, fmt.Errorf("failed writing cover image: %w", err)
		}
		log.Debugf("extracted cover image of %d bytes", len(cover))
	}

	res.AudioPath = outputBase + "." + format
	if err := writeFileAtomic(res.AudioPath, r.src, box.xorStream); err != nil {
		if res.CoverPath != "" {
			_ = os.Remove(res.CoverPath)
		}
		return nil, fmt.Errorf("failed writing audio stream: %w", err)
	}

	return res, nil
}

func readHeader(r *reader, strict bool) error {
	header, err := r.readExact(headerLen)
	if err != nil {
		return err
	}
	if strict && !bytes.HasPrefix(header, magicHeader) {
		return fmt.Errorf("%w: bad magic %q", ErrNotNCM, header[:len(magicHeader)])
	}
	return nil
}

func resolveFormat(meta *Metadata, fallback string) (string, error) {
	if meta != nil && meta.Format != "" {
		return meta.Format, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", ErrMissingFormat
}

// readCover returns the raw cover image, or nil when the cover block is
// empty. The image bytes are not scrambled.
func readCover(r *reader) ([]byte, error) {
	imageLen, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if imageLen == 0 {
		return nil, nil
	}
	return r.readExact(imageLen)
}

// writeFileAtomic streams src into path through a temporary file in the
// same directory, renaming it over path only once everything is written.
// When transform is non-nil it is applied to every chunk before writing.
func writeFileAtomic(path string, src io.Reader, transform func([]byte)) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed creating output directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed creating temporary output file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpFile.Name())
		}
	}()

	buf := make([]byte, audioChunkSize)
	for {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			if transform != nil {
				transform(buf[:n])
			}
			if _, err = tmpFile.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed writing output chunk: %w", err)
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		} else if readErr != nil {
			err = fmt.Errorf("failed reading payload: %w", readErr)
			return err
		}
	}

	if err = tmpFile.Close(); err != nil {
		return fmt.Errorf("failed closing temporary output file: %w", err)
	}
	if err = os.Rename(tmpFile.Name(), path); err != nil {
		return fmt.Errorf("failed replacing output file: %w", err)
	}
	return nil
}
