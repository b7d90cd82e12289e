package ncm

import (
	"crypto/aes"
	"encoding/hex"
	"fmt"
)

// The two fixed AES-128 keys every NCM container is wrapped with, and the
// XOR masks applied on top. Compiled in, no runtime configuration.
const (
	coreHexKey = "687A4852416D736F356B496E62617857"
	metaHexKey = "2331346C6A6B5F215C5D2630553C2728"

	keyXorMask  = 0x64
	metaXorMask = 0x63
)

func coreKey() []byte { return mustHexKey(coreHexKey) }
func metaKey() []byte { return mustHexKey(metaHexKey) }

func mustHexKey(s string) []byte {
	key, err := hex.DecodeString(s)
	if err != nil || len(key) != 16 {
		panic(fmt.Sprintf("invalid built-in key: %s", s))
	}
	return key
}

// decryptAes128Ecb decrypts each 16-byte block independently, no chaining
// and no padding handled by the cipher itself.
func decryptAes128Ecb(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}

	bs := block.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not block aligned", ErrCipher, len(data))
	}

	decrypted := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Decrypt(decrypted[i:i+bs], data[i:i+bs])
	}
	return decrypted, nil
}

// pkcs7Unpad validates and strips the trailing padding run. An empty
// buffer unpads to an empty buffer.
func pkcs7Unpad(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return src, nil
	}

	padLen := int(src[len(src)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(src) {
		return nil, fmt.Errorf("%w: pad length %d", ErrInvalidPadding, padLen)
	}
	for _, b := range src[len(src)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: inconsistent pad bytes", ErrInvalidPadding)
		}
	}
	return src[:len(src)-padLen], nil
}
