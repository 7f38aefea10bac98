package lookup

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

// Argon2id parameters for new credentials. Stored hashes carry their own
// parameters, so changing these does not invalidate existing credentials.
const (
	argonIterations  = 2
	argonMemory      = 64 * 1024
	argonParallelism = 1
	argonSaltLength  = 16
	argonHashLength  = 32
)

var b64 = base64.RawStdEncoding

// HashPassword returns the Argon2id hash stored as an agent credential, in
// the encoded form $argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<hash>.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New(errors.InvalidData, "password must not be empty")
	}
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generating salt")
	}
	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonHashLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// CheckPassword reports whether password matches a stored credential.
// Argon2id and Argon2i hashes are accepted; anything else never matches.
func CheckPassword(hash, password string) bool {
	h, err := parseHash(hash)
	if err != nil {
		return false
	}
	key := h.derive([]byte(password))
	return subtle.ConstantTimeCompare(key, h.key) == 1
}

type argonHash struct {
	variant     string
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt, key   []byte
}

func (h argonHash) derive(password []byte) []byte {
	n := uint32(len(h.key))
	if h.variant == "argon2i" {
		return argon2.Key(password, h.salt, h.iterations, h.memory, h.parallelism, n)
	}
	return argon2.IDKey(password, h.salt, h.iterations, h.memory, h.parallelism, n)
}

func parseHash(s string) (argonHash, error) {
	var h argonHash
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return h, errors.New(errors.InvalidData, "malformed credential")
	}
	h.variant = parts[1]
	if h.variant != "argon2id" && h.variant != "argon2i" {
		return h, errors.Newf(errors.InvalidData, "unsupported credential type %q", h.variant)
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return h, errors.Newf(errors.InvalidData, "unsupported argon2 version %q", parts[2])
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.iterations, &h.parallelism); err != nil {
		return h, errors.Newf(errors.InvalidData, "malformed argon2 parameters %q", parts[3])
	}
	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil {
		return h, errors.New(errors.InvalidData, "malformed credential salt")
	}
	if h.key, err = b64.DecodeString(parts[5]); err != nil || len(h.key) == 0 {
		return h, errors.New(errors.InvalidData, "malformed credential hash")
	}
	return h, nil
}
