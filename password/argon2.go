package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcAlgorithm = "argon2id"
	minPassBytes = 10

	// DefaultMaxPasswordBytes bounds the work an attacker can force per attempt.
	DefaultMaxPasswordBytes = 1024
)

// Parameter floors. Stored hashes below them are treated as malformed.
const (
	floorMemoryKB    = 8 * 1024
	floorTime        = 1
	floorParallelism = 1
	floorSaltBytes   = 16
	floorKeyBytes    = 16
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length")
	ErrMalformedHash    = errors.New("malformed argon2id hash")
	ErrInvalidConfig    = errors.New("invalid password config")
)

// Config holds Argon2id cost parameters. MaxPasswordBytes of zero means
// DefaultMaxPasswordBytes.
type Config struct {
	Memory           uint32 `yaml:"memory"`
	Time             uint32 `yaml:"time"`
	Parallelism      uint8  `yaml:"parallelism"`
	SaltLength       uint32 `yaml:"salt_length"`
	KeyLength        uint32 `yaml:"key_length"`
	MaxPasswordBytes int    `yaml:"max_password_bytes"`
}

// DefaultConfig returns parameters sized for an interactive sign-in.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("%w: memory must be >= %d KB", ErrInvalidConfig, floorMemoryKB)
	case c.Time < floorTime:
		return fmt.Errorf("%w: time must be >= %d", ErrInvalidConfig, floorTime)
	case c.Parallelism < floorParallelism:
		return fmt.Errorf("%w: parallelism must be >= %d", ErrInvalidConfig, floorParallelism)
	case c.SaltLength < floorSaltBytes:
		return fmt.Errorf("%w: salt length must be >= %d", ErrInvalidConfig, floorSaltBytes)
	case c.KeyLength < floorKeyBytes:
		return fmt.Errorf("%w: key length must be >= %d", ErrInvalidConfig, floorKeyBytes)
	case c.MaxPasswordBytes < 0, c.MaxPasswordBytes > 0 && c.MaxPasswordBytes < minPassBytes:
		return fmt.Errorf("%w: max password bytes must be 0 or >= %d", ErrInvalidConfig, minPassBytes)
	}
	return nil
}

// phc is one decoded $argon2id$ string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version, h.memory, h.time, h.parallelism,
		base64.StdEncoding.EncodeToString(h.salt),
		base64.StdEncoding.EncodeToString(h.key))
}

func (h phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, uint32(len(h.key)))
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, what)
}

func decodePHC(encoded string) (phc, error) {
	var h phc
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return h, malformed("want 5 segments")
	}
	if parts[1] != phcAlgorithm {
		return h, malformed("algorithm " + strconv.Quote(parts[1]))
	}
	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return h, malformed("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return h, malformed("unsupported version " + strconv.Quote(version))
	}
	if err := h.decodeParams(parts[3]); err != nil {
		return h, err
	}

	var err error
	if h.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(h.salt) < floorSaltBytes {
		return h, malformed("salt")
	}
	if h.key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil || len(h.key) == 0 {
		return h, malformed("key")
	}
	return h, nil
}

// decodeParams reads exactly m, t and p, each once, in any order.
func (h *phc) decodeParams(segment string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(segment, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return malformed("parameter " + strconv.Quote(pair))
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || v < floorMemoryKB {
				return malformed("memory")
			}
			h.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || v < floorTime {
				return malformed("time")
			}
			h.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || v < floorParallelism {
				return malformed("parallelism")
			}
			h.parallelism = uint8(v)
		default:
			return malformed("parameter " + strconv.Quote(name))
		}
	}
	if len(seen) != 3 {
		return malformed("missing parameters")
	}
	return nil
}

// Argon2 hashes and verifies PHC-encoded argon2id strings.
type Argon2 struct {
	config Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash encodes password with a fresh random salt. The password is hashed as
// raw bytes, with no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	switch {
	case len(password) < minPassBytes:
		return "", ErrPasswordTooShort
	case len(password) > a.config.MaxPasswordBytes:
		return "", ErrPasswordTooLong
	}

	h := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
		key:         make([]byte, a.config.KeyLength),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", err
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// Verify derives a key with the stored parameters and compares it in
// constant time.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	h, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.derive(password), h.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	h, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return a.config.Memory > h.memory ||
		a.config.Time > h.time ||
		a.config.Parallelism > h.parallelism ||
		a.config.KeyLength != uint32(len(h.key)), nil
}
