package authcore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/taskforge/authcore/tokencache"
)

const (
	mfaChallengeKeyPrefix      = "amc:"
	mfaChallengeRecordVersion1 = 1
)

// mfaChallenge is the pending state between a successful password check
// and the MFA confirmation that releases tokens.
type mfaChallenge struct {
	AccountID string
	ExpiresAt int64
	Attempts  uint16
}

// mfaChallengeStore persists pending challenges in the token cache under
// their own key prefix. Records are compact binary, not JSON; they sit on
// the login hot path.
type mfaChallengeStore struct {
	cache tokencache.Cache
	now   func() time.Time
}

func newMFAChallengeStore(cache tokencache.Cache, now func() time.Time) *mfaChallengeStore {
	if now == nil {
		now = time.Now
	}
	return &mfaChallengeStore{cache: cache, now: now}
}

func (s *mfaChallengeStore) key(challengeID string) string {
	return mfaChallengeKeyPrefix + challengeID
}

func (s *mfaChallengeStore) Save(ctx context.Context, challengeID string, record *mfaChallenge, ttl time.Duration) error {
	encoded, err := encodeMFAChallenge(record)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.key(challengeID), encoded, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return nil
}

func (s *mfaChallengeStore) Get(ctx context.Context, challengeID string) (*mfaChallenge, error) {
	data, err := s.cache.Get(ctx, s.key(challengeID))
	if err != nil {
		if errors.Is(err, tokencache.ErrMiss) {
			return nil, ErrMFAChallengeExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}

	record, err := decodeMFAChallenge(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.cache.Delete(ctx, s.key(challengeID))
		return nil, ErrMFAChallengeExpired
	}
	return record, nil
}

// Consume deletes the challenge after a successful confirmation. The
// delete is the one-shot gate: when two confirmations race, exactly one
// sees deleted=true and the other is reported as a replay.
func (s *mfaChallengeStore) Consume(ctx context.Context, challengeID string) error {
	deleted, err := s.cache.Delete(ctx, s.key(challengeID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if !deleted {
		return ErrMFAReplay
	}
	return nil
}

// RecordFailure burns one attempt and reports whether the budget is now
// exhausted. An exhausted challenge is deleted; the login must restart
// from the password step.
func (s *mfaChallengeStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int) (bool, error) {
	record, err := s.Get(ctx, challengeID)
	if err != nil {
		return false, err
	}

	record.Attempts++
	if int(record.Attempts) >= maxAttempts {
		_, _ = s.cache.Delete(ctx, s.key(challengeID))
		return true, nil
	}

	ttl := time.Unix(record.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		_, _ = s.cache.Delete(ctx, s.key(challengeID))
		return false, ErrMFAChallengeExpired
	}
	if err := s.Save(ctx, challengeID, record, ttl); err != nil {
		return false, err
	}
	return false, nil
}

func encodeMFAChallenge(record *mfaChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(mfaChallengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("mfa challenge account id length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)

	return buf.Bytes(), nil
}

func decodeMFAChallenge(data []byte) (*mfaChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != mfaChallengeRecordVersion1 {
		return nil, errors.New("invalid mfa challenge version")
	}

	record := &mfaChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.AccountID = string(id)

	return record, nil
}
