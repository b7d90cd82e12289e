package ncm

import "errors"

var (
	// ErrNotNCM is returned in strict mode when the container does not
	// start with the expected magic bytes.
	ErrNotNCM = errors.New("not an ncm container")

	// ErrTruncated is returned when a length field demands more bytes
	// than remain in the container.
	ErrTruncated = errors.New("truncated ncm container")

	// ErrInvalidPadding is returned when the PKCS#7 trailing run of a
	// decrypted key or metadata block does not validate.
	ErrInvalidPadding = errors.New("invalid pkcs7 padding")

	// ErrShortKeyData is returned when the unwrapped key data is not
	// longer than its fixed 17-byte prefix, leaving no keystream seed.
	ErrShortKeyData = errors.New("decrypted key data too short")

	// ErrCipher is returned when the AES block decrypt cannot run, e.g.
	// the ciphertext is not block aligned.
	ErrCipher = errors.New("aes decrypt failed")

	ErrBase64Decode = errors.New("malformed base64 in metadata")
	ErrJSONParse    = errors.New("malformed json in metadata")

	// ErrMissingFormat is returned when the metadata block is absent or
	// carries no usable format string and no default format was
	// configured.
	ErrMissingFormat = errors.New("metadata has no audio format")
)
