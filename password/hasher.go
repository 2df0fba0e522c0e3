package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcID = "argon2id"

// Work-factor floors. A Config below any of these is a deployment mistake,
// not a tuning choice, and New refuses it.
const (
	MinMemoryKB    uint32 = 8 * 1024
	MinTimeCost    uint32 = 1
	MinParallelism uint8  = 1
	MinSaltLength  uint32 = 16
	MinKeyLength   uint32 = 16
)

var (
	// ErrWorkFactor indicates the configured argon2 parameters cannot be
	// satisfied. Callers should treat this as fatal misconfiguration.
	ErrWorkFactor = errors.New("password: unsatisfiable work factor")

	// ErrMalformedHash indicates a stored hash string that is not a valid
	// argon2id PHC record.
	ErrMalformedHash = errors.New("password: malformed stored hash")
)

// Config holds the argon2id cost parameters.
type Config struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns interactive-login argon2id parameters.
func DefaultConfig() Config {
	return Config{
		MemoryKB:    64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies credentials. It is immutable after New and
// safe for concurrent use.
type Hasher struct {
	cfg Config
}

// New validates cfg against the work-factor floors and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	switch {
	case cfg.MemoryKB < MinMemoryKB:
		return nil, fmt.Errorf("%w: memory %d KB below %d KB", ErrWorkFactor, cfg.MemoryKB, MinMemoryKB)
	case cfg.Time < MinTimeCost:
		return nil, fmt.Errorf("%w: time cost %d below %d", ErrWorkFactor, cfg.Time, MinTimeCost)
	case cfg.Parallelism < MinParallelism:
		return nil, fmt.Errorf("%w: parallelism %d below %d", ErrWorkFactor, cfg.Parallelism, MinParallelism)
	case cfg.SaltLength < MinSaltLength:
		return nil, fmt.Errorf("%w: salt length %d below %d", ErrWorkFactor, cfg.SaltLength, MinSaltLength)
	case cfg.KeyLength < MinKeyLength:
		return nil, fmt.Errorf("%w: key length %d below %d", ErrWorkFactor, cfg.KeyLength, MinKeyLength)
	}
	return &Hasher{cfg: cfg}, nil
}

// Hash derives a salted argon2id digest of plaintext and encodes it as a
// PHC record ($argon2id$v=19$m=...,t=...,p=...$salt$hash).
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("%w: salt generation: %v", ErrWorkFactor, err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.cfg.Time, h.cfg.MemoryKB, h.cfg.Parallelism, h.cfg.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcID, argon2.Version,
		h.cfg.MemoryKB, h.cfg.Time, h.cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Compare reports whether plaintext matches the stored PHC record. The
// digest comparison is constant time. A record that cannot be parsed
// returns ErrMalformedHash, never a silent false.
func (h *Hasher) Compare(plaintext, encoded string) (bool, error) {
	rec, err := parseRecord(encoded)
	if err != nil {
		return false, err
	}

	derived := argon2.IDKey([]byte(plaintext), rec.salt, rec.time, rec.memoryKB, rec.parallelism, uint32(len(rec.key)))
	return subtle.ConstantTimeCompare(derived, rec.key) == 1, nil
}

// NeedsRehash reports whether the stored record was produced with weaker
// parameters than the Hasher's current configuration.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	rec, err := parseRecord(encoded)
	if err != nil {
		return false, err
	}
	return rec.memoryKB < h.cfg.MemoryKB ||
		rec.time < h.cfg.Time ||
		rec.parallelism < h.cfg.Parallelism ||
		uint32(len(rec.key)) != h.cfg.KeyLength, nil
}

type record struct {
	memoryKB    uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parseRecord(encoded string) (*record, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != phcID {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, ErrMalformedHash
	}

	var rec record
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &rec.memoryKB, &rec.time, &rec.parallelism); err != nil {
		return nil, ErrMalformedHash
	}
	if rec.memoryKB == 0 || rec.time == 0 || rec.parallelism == 0 {
		return nil, ErrMalformedHash
	}

	var err error
	if rec.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil || uint32(len(rec.salt)) < MinSaltLength {
		return nil, ErrMalformedHash
	}
	if rec.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(rec.key) == 0 {
		return nil, ErrMalformedHash
	}

	return &rec, nil
}
