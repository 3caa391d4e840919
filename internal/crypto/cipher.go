package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrDecrypt reports a ciphertext that could not be decrypted, including
// bad PKCS#7 padding.
var ErrDecrypt = errors.New("decrypt error")

// DeriveIV returns the first block of SHA-256(key || deviceID).
func DeriveIV(key []byte, deviceID string) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write([]byte(deviceID))
	return h.Sum(nil)[:aes.BlockSize]
}

// Decrypt decrypts an AES-256-CBC ciphertext under the device IV and
// strips the PKCS#7 padding.
func Decrypt(key []byte, deviceID string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext of %d bytes is not a whole number of blocks", ErrDecrypt, len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrDecrypt, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, DeriveIV(key, deviceID)).CryptBlocks(plaintext, ciphertext)

	plaintext, err = unpad(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// Encrypt pads plaintext with PKCS#7 and encrypts it with AES-256-CBC under
// the device IV. This is the device side of Decrypt.
func Encrypt(key []byte, deviceID string, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	padded := pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, DeriveIV(key, deviceID)).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding bytes")
		}
	}
	return data[:len(data)-n], nil
}
