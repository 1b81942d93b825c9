package kis

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// decryptAESCBC decrypts a base64 AES-CBC payload with the key and IV the
// server issued in the subscription ack for this transaction.
func decryptAESCBC(key, iv, payload string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", err
	}
	if len(iv) != block.BlockSize() {
		return "", errors.New("iv length does not match block size")
	}
	if len(ct) == 0 || len(ct)%block.BlockSize() != 0 {
		return "", errors.New("ciphertext is not block-aligned")
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, []byte(iv)).CryptBlocks(plain, ct)
	return string(unpadPKCS7(plain)), nil
}

func unpadPKCS7(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n == 0 || n > len(b) {
		return b
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return b
		}
	}
	return b[:len(b)-n]
}
