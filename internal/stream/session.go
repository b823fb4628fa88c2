package stream

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Credentials authenticate the stream handshake.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionStore returns the encoded credential blob saved at login.
type SessionStore interface {
	Load() (string, error)
}

// StaticSession is a blob held in memory, e.g. from the environment.
type StaticSession string

func (s StaticSession) Load() (string, error) {
	return string(s), nil
}

// FileSession reads the blob from a file path.
type FileSession string

func (s FileSession) Load() (string, error) {
	data, err := os.ReadFile(string(s))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read session file: %w", err)
	}
	return string(data), nil
}

// EncodeCredentials produces the blob DecodeCredentials reads.
func EncodeCredentials(c Credentials) string {
	data, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCredentials decodes a base64 blob holding either a
// {"username","password"} JSON object or a "username:password" pair.
func DecodeCredentials(blob string) (Credentials, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return Credentials{}, ErrMissingCredentials
	}

	raw, err := decodeBase64(blob)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		user, pass, ok := strings.Cut(string(raw), ":")
		if !ok {
			return Credentials{}, fmt.Errorf("%w: unrecognised session format", ErrMissingCredentials)
		}
		creds = Credentials{Username: user, Password: pass}
	}
	if creds.Username == "" {
		return Credentials{}, fmt.Errorf("%w: empty username", ErrMissingCredentials)
	}
	return creds, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, errors.New("session is not base64 encoded")
}
