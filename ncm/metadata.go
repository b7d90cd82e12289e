package ncm

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Fixed textual prefixes inside the metadata block.
const (
	metaXorPrefixLen   = 22 // "163 key(Don't modify):"
	metaPlainPrefixLen = 6  // "music:"
)

// Metadata is the JSON blob embedded in the container.
type Metadata struct {
	MusicID       int             `json:"musicId"`
	MusicName     string          `json:"musicName"`
	Artist        [][]interface{} `json:"artist"` // [[name, id], ...]
	AlbumID       int             `json:"albumId"`
	Album         string          `json:"album"`
	AlbumPicDocID interface{}     `json:"albumPicDocId"` // string or int
	AlbumPic      string          `json:"albumPic"`
	BitRate       int             `json:"bitrate"`
	Mp3DocID      string          `json:"mp3DocId"`
	Duration      int             `json:"duration"`
	MvID          int             `json:"mvId"`
	Alias         []string        `json:"alias"`
	TransNames    []interface{}   `json:"transNames"`
	Format        string          `json:"format"`
}

// ArtistNames flattens the [[name, id], ...] shape into the name strings,
// skipping entries that don't carry one.
func (m *Metadata) ArtistNames() []string {
	if len(m.Artist) == 0 {
		return nil
	}

	var names []string
	for _, artist := range m.Artist {
		if len(artist) == 0 {
			continue
		}
		if name, ok := artist[0].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// readMetadata unwraps and parses the metadata block at the cursor.
// Returns nil when the container carries no metadata (zero length field).
func readMetadata(r *reader) (*Metadata, error) {
	metaLen, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if metaLen == 0 {
		return nil, nil
	}

	metaData, err := r.readExact(metaLen)
	if err != nil {
		return nil, err
	}
	for i := range metaData {
		metaData[i] ^= metaXorMask
	}

	if len(metaData) < metaXorPrefixLen {
		return nil, fmt.Errorf("%w: metadata block of %d bytes", ErrTruncated, len(metaData))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(string(metaData[metaXorPrefixLen:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBase64Decode, err)
	}

	decrypted, err := decryptAes128Ecb(metaKey(), ciphertext)
	if err != nil {
		return nil, err
	}
	plain, err := pkcs7Unpad(decrypted)
	if err != nil {
		return nil, err
	}

	if len(plain) < metaPlainPrefixLen {
		return nil, fmt.Errorf("%w: decrypted metadata of %d bytes", ErrJSONParse, len(plain))
	}

	var meta Metadata
	dec := json.NewDecoder(bytes.NewReader(plain[metaPlainPrefixLen:]))
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSONParse, err)
	}

	meta.Format = strings.ToLower(strings.TrimSpace(meta.Format))
	return &meta, nil
}
