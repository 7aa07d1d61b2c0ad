package crypto

import (
	"encoding/base64"
	"runtime"
)

// Wipe zera o buffer. Melhor esforço.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}

func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func FromB64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
