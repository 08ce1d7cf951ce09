package hlsgrab

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// sequenceIV derives the HLS-conventional IV for a segment with no explicit
// EXT-X-KEY IV attribute: 8 zero bytes followed by the big-endian uint64
// encoding of the segment's index, per §4.8 and invariant 3 in §8.
func sequenceIV(segmentIndex int) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[8:], uint64(segmentIndex))
	return iv
}

// decryptSegment reverses AES-128-CBC + PKCS#7 padding (C9). explicitIV, if
// non-nil, is honored verbatim instead of the sequence-derived IV — the
// redesign's resolution of the open question in §9.1: unlike the original
// corpus's decryptor (which always used a zero IV), this one respects an
// EXT-X-KEY IV attribute when the playlist supplies one.
func decryptSegment(ciphertext, key []byte, segmentIndex int, explicitIV []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, ErrInvalidKeyLength
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrCiphertextMisaligned
	}

	iv := explicitIV
	if iv == nil {
		iv = sequenceIV(segmentIndex)
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidIV
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return removePKCS7Padding(plain)
}

// removePKCS7Padding strips and validates PKCS#7 padding from a decrypted
// plaintext block stream.
func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrBadPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, ErrBadPadding
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, ErrBadPadding
	}
	return data[:len(data)-padLen], nil
}
