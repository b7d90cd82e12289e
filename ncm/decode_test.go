package ncm

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// containerSpec describes a synthetic container to build for a test.
type containerSpec struct {
	header   []byte
	keyData  []byte // raw key data, wrapped by the builder
	metaJSON []byte // nil means an absent metadata block
	cover    []byte
	audio    []byte // plaintext, scrambled by the builder
}

// buildContainer assembles a container by running the wrap steps forward:
// the decoder must recover exactly what went in.
func buildContainer(t *testing.T, spec containerSpec) []byte {
	t.Helper()

	var buf bytes.Buffer

	header := spec.header
	if header == nil {
		header = append([]byte("CTENFDAM"), 0x01, 0x70)
	}
	buf.Write(header)

	keyBlock := encryptAes128EcbRaw(t, coreKey(), pkcs7Pad(spec.keyData))
	for i := range keyBlock {
		keyBlock[i] ^= keyXorMask
	}
	buf.Write(lengthPrefixed(keyBlock))

	if spec.metaJSON == nil {
		buf.Write([]byte{0, 0, 0, 0})
	} else {
		buf.Write(lengthPrefixed(wrapMetadata(t, spec.metaJSON)))
	}

	buf.Write(make([]byte, coverGapLen))
	buf.Write(lengthPrefixed(spec.cover))

	if len(spec.audio) > 0 {
		box, err := newKeyBox(spec.keyData)
		require.NoError(t, err)

		scrambled := bytes.Clone(spec.audio)
		for off := 0; off < len(scrambled); off += audioChunkSize {
			end := off + audioChunkSize
			if end > len(scrambled) {
				end = len(scrambled)
			}
			box.xorStream(scrambled[off:end])
		}
		buf.Write(scrambled)
	}

	return buf.Bytes()
}

type DecodeSuite struct {
	suite.Suite

	dir     string
	keyData []byte
}

func (suite *DecodeSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.keyData = append([]byte("neteasecloudmusic"), []byte("0123456789abcdef")...)
}

func (suite *DecodeSuite) writeContainer(spec containerSpec) string {
	path := filepath.Join(suite.dir, "song.ncm")
	suite.Require().NoError(os.WriteFile(path, buildContainer(suite.T(), spec), 0o644))
	return path
}

func (suite *DecodeSuite) TestEndToEnd() {
	audio := make([]byte, audioChunkSize+1000)
	for i := range audio {
		audio[i] = byte(i % 251)
	}
	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3, 4}

	input := suite.writeContainer(containerSpec{
		keyData:  suite.keyData,
		metaJSON: []byte(`{"musicName":"Song","album":"Album","artist":[["Artist",7]],"format":"mp3"}`),
		cover:    cover,
		audio:    audio,
	})
	base := filepath.Join(suite.dir, "out", "song")

	res, err := DecodeFile(input, base, Options{})
	suite.Require().NoError(err)

	suite.Equal("mp3", res.Format)
	suite.Equal(base+".mp3", res.AudioPath)
	suite.Equal(base+".jpg", res.CoverPath)
	suite.Require().NotNil(res.Meta)
	suite.Equal("Song", res.Meta.MusicName)

	gotAudio, err := os.ReadFile(res.AudioPath)
	suite.Require().NoError(err)
	suite.Equal(audio, gotAudio)

	gotCover, err := os.ReadFile(res.CoverPath)
	suite.Require().NoError(err)
	suite.Equal(cover, gotCover)
}

func (suite *DecodeSuite) TestDecodeIsDeterministic() {
	audio := []byte("some deterministic audio payload")
	spec := containerSpec{
		keyData:  suite.keyData,
		metaJSON: []byte(`{"format":"flac"}`),
		audio:    audio,
	}
	input := suite.writeContainer(spec)

	first, err := DecodeFile(input, filepath.Join(suite.dir, "a"), Options{})
	suite.Require().NoError(err)
	second, err := DecodeFile(input, filepath.Join(suite.dir, "b"), Options{})
	suite.Require().NoError(err)

	firstBytes, err := os.ReadFile(first.AudioPath)
	suite.Require().NoError(err)
	secondBytes, err := os.ReadFile(second.AudioPath)
	suite.Require().NoError(err)
	suite.Equal(firstBytes, secondBytes)
	suite.Equal(audio, firstBytes)
}

func (suite *DecodeSuite) TestNoCoverBlock() {
	input := suite.writeContainer(containerSpec{
		keyData:  suite.keyData,
		metaJSON: []byte(`{"format":"mp3"}`),
		audio:    []byte("audio without artwork"),
	})

	res, err := DecodeFile(input, filepath.Join(suite.dir, "nocover"), Options{})
	suite.Require().NoError(err)
	suite.Empty(res.CoverPath)
	suite.NoFileExists(filepath.Join(suite.dir, "nocover.jpg"))
}

func (suite *DecodeSuite) TestTruncatedKeyBlock() {
	// A key length field claiming more bytes than the file holds.
	var buf bytes.Buffer
	buf.Write(append([]byte("CTENFDAM"), 0, 0))
	buf.Write(binary.LittleEndian.AppendUint32(nil, 4096))
	buf.Write([]byte{1, 2, 3})

	input := filepath.Join(suite.dir, "truncated.ncm")
	suite.Require().NoError(os.WriteFile(input, buf.Bytes(), 0o644))

	_, err := DecodeFile(input, filepath.Join(suite.dir, "out"), Options{})
	suite.Require().ErrorIs(err, ErrTruncated)
}

func (suite *DecodeSuite) TestEmptyMetadataFailsByDefault() {
	input := suite.writeContainer(containerSpec{
		keyData: suite.keyData,
		audio:   []byte("audio with no metadata"),
	})
	base := filepath.Join(suite.dir, "nometa", "song")

	_, err := DecodeFile(input, base, Options{})
	suite.Require().ErrorIs(err, ErrMissingFormat)

	// Failing before the payload means no output directory either.
	suite.NoDirExists(filepath.Join(suite.dir, "nometa"))
}

func (suite *DecodeSuite) TestEmptyMetadataWithDefaultFormat() {
	audio := []byte("audio with no metadata")
	input := suite.writeContainer(containerSpec{
		keyData: suite.keyData,
		audio:   audio,
	})
	base := filepath.Join(suite.dir, "defaulted")

	res, err := DecodeFile(input, base, Options{DefaultFormat: "mp3"})
	suite.Require().NoError(err)
	suite.Equal(base+".mp3", res.AudioPath)
	suite.Nil(res.Meta)

	got, err := os.ReadFile(res.AudioPath)
	suite.Require().NoError(err)
	suite.Equal(audio, got)
}

func (suite *DecodeSuite) TestStrictMagic() {
	spec := containerSpec{
		header:   append([]byte("NOTANYNCM"), 0x00),
		keyData:  suite.keyData,
		metaJSON: []byte(`{"format":"mp3"}`),
		audio:    []byte("header bytes vary in the wild"),
	}
	input := suite.writeContainer(spec)

	_, err := DecodeFile(input, filepath.Join(suite.dir, "strict"), Options{StrictMagic: true})
	suite.Require().ErrorIs(err, ErrNotNCM)

	// The permissive default must still accept it.
	_, err = DecodeFile(input, filepath.Join(suite.dir, "lax"), Options{})
	suite.Require().NoError(err)
}

func (suite *DecodeSuite) TestTruncatedCoverLeavesNoOutput() {
	full := buildContainer(suite.T(), containerSpec{
		keyData:  suite.keyData,
		metaJSON: []byte(`{"format":"mp3"}`),
		cover:    make([]byte, 4000),
		audio:    []byte("never reached"),
	})

	// Cut the file in the middle of the cover image.
	input := filepath.Join(suite.dir, "cut.ncm")
	suite.Require().NoError(os.WriteFile(input, full[:len(full)-2000], 0o644))

	base := filepath.Join(suite.dir, "cutout", "song")
	_, err := DecodeFile(input, base, Options{})
	suite.Require().ErrorIs(err, ErrTruncated)
	suite.NoDirExists(filepath.Join(suite.dir, "cutout"))
}

func (suite *DecodeSuite) TestInvalidKeyPadding() {
	// Encrypt key data without padding it; the trailing bytes are then
	// whatever the plaintext ends with, which is not a valid pad run.
	keyBlock := encryptAes128EcbRaw(suite.T(), coreKey(), bytes.Repeat([]byte{0xA0, 0x17}, 16))
	for i := range keyBlock {
		keyBlock[i] ^= keyXorMask
	}

	var buf bytes.Buffer
	buf.Write(append([]byte("CTENFDAM"), 0, 0))
	buf.Write(lengthPrefixed(keyBlock))

	input := filepath.Join(suite.dir, "badpad.ncm")
	suite.Require().NoError(os.WriteFile(input, buf.Bytes(), 0o644))

	_, err := DecodeFile(input, filepath.Join(suite.dir, "out"), Options{})
	suite.Require().ErrorIs(err, ErrInvalidPadding)
}

func TestDecodeSuite(t *testing.T) {
	suite.Run(t, new(DecodeSuite))
}
