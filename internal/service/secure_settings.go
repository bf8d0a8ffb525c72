package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sealedFormat = "aes-gcm-v1"

var (
	ErrNoSettingsKey = errors.New("settings encryption key not configured")
	ErrSealedValue   = errors.New("sealed setting value cannot be opened")
)

// MaskedValue replaces sensitive setting values in API responses.
var MaskedValue = json.RawMessage(`"***"`)

type sealedValue struct {
	Enc   string `json:"enc"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// SettingsSealer encrypts sensitive settings (keys naming a secret, token,
// password or api key) at rest. The setting key is bound as associated data,
// so a sealed value cannot be moved to another key. The previous key only
// opens; rotation reseals on the next write.
type SettingsSealer struct {
	primary cipher.AEAD
	all     []cipher.AEAD
}

func NewSettingsSealer(primary, previous string) (*SettingsSealer, error) {
	s := &SettingsSealer{}
	for i, raw := range []string{primary, previous} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		aead, err := newGCM(raw)
		if err != nil {
			return nil, fmt.Errorf("settings key %d: %w", i, err)
		}
		if i == 0 {
			s.primary = aead
		}
		s.all = append(s.all, aead)
	}
	return s, nil
}

func (s *SettingsSealer) Seal(key string, raw []byte) ([]byte, error) {
	if !IsSensitiveSetting(key) {
		return raw, nil
	}
	if s == nil || s.primary == nil {
		return nil, ErrNoSettingsKey
	}
	nonce := make([]byte, s.primary.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := s.primary.Seal(nil, nonce, raw, associatedData(key))
	return json.Marshal(sealedValue{
		Enc:   sealedFormat,
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(ct),
	})
}

// Open returns raw unchanged for values that were never sealed.
func (s *SettingsSealer) Open(key string, raw []byte) ([]byte, error) {
	if !IsSensitiveSetting(key) || len(raw) == 0 {
		return raw, nil
	}
	var v sealedValue
	if err := json.Unmarshal(raw, &v); err != nil || v.Enc != sealedFormat {
		return raw, nil
	}
	nonce, err := base64.StdEncoding.DecodeString(v.Nonce)
	if err != nil {
		return nil, ErrSealedValue
	}
	ct, err := base64.StdEncoding.DecodeString(v.Data)
	if err != nil {
		return nil, ErrSealedValue
	}
	if s != nil {
		for _, aead := range s.all {
			if len(nonce) != aead.NonceSize() {
				continue
			}
			if pt, err := aead.Open(nil, nonce, ct, associatedData(key)); err == nil {
				return pt, nil
			}
		}
	}
	return nil, ErrSealedValue
}

func IsSensitiveSetting(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	for _, m := range []string{"secret", "token", "password", "api_key", "private_key"} {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

func associatedData(key string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(key)))
}

// newGCM accepts a base64 key or raw bytes. Keys shorter than 16 bytes are
// rejected; longer ones are cut down to the nearest AES size.
func newGCM(k string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		key = []byte(k)
	}
	switch n := len(key); {
	case n < 16:
		return nil, errors.New("key shorter than 16 bytes")
	case n < 24:
		key = key[:16]
	case n < 32:
		key = key[:24]
	default:
		key = key[:32]
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
