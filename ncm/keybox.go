package ncm

import "fmt"

// The decrypted key data starts with the fixed string "neteasecloudmusic";
// only the bytes after it seed the key box.
const keySeedPrefixLen = 17

// unwrapKeyData reads the encrypted key block at the cursor and recovers
// the raw key data: XOR mask, AES-128-ECB decrypt with the core key,
// PKCS#7 unpad.
func unwrapKeyData(r *reader) ([]byte, error) {
	keyLen, err := r.readUint32()
	if err != nil {
		return nil, err
	}

	keyData, err := r.readExact(keyLen)
	if err != nil {
		return nil, err
	}
	for i := range keyData {
		keyData[i] ^= keyXorMask
	}

	decrypted, err := decryptAes128Ecb(coreKey(), keyData)
	if err != nil {
		return nil, err
	}
	return pkcs7Unpad(decrypted)
}

// keyBox is the 256-entry permutation table driving the audio keystream.
type keyBox struct {
	box [256]byte
}

// newKeyBox derives the table from the unwrapped key data with a rolling
// accumulator shuffle over the seed bytes, repeated cyclically. Every
// iteration swaps two entries, so the table stays a permutation of 0..255.
func newKeyBox(keyData []byte) (*keyBox, error) {
	if len(keyData) <= keySeedPrefixLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortKeyData, len(keyData))
	}
	seed := keyData[keySeedPrefixLen:]

	kb := &keyBox{}
	for i := 0; i < 256; i++ {
		kb.box[i] = byte(i)
	}

	var lastByte byte
	seedOffset := 0
	for i := 0; i < 256; i++ {
		swap := kb.box[i]
		c := swap + lastByte + seed[seedOffset]
		seedOffset++
		if seedOffset >= len(seed) {
			seedOffset = 0
		}
		kb.box[i] = kb.box[c]
		kb.box[c] = swap
		lastByte = c
	}
	return kb, nil
}

// xorStream transforms one audio chunk in place. The keystream index is
// the offset within the chunk, not the absolute file position, so callers
// must feed chunks whose size is a multiple of 256 (see audioChunkSize).
// XOR makes the transform its own inverse.
func (kb *keyBox) xorStream(chunk []byte) {
	for i := range chunk {
		j := byte(i + 1)
		chunk[i] ^= kb.box[(kb.box[j]+kb.box[(kb.box[j]+j)&0xff])&0xff]
	}
}
