package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersion1 = 1
)

var (
	ErrChallengeNotFound = errors.New("pending challenge not found")
	ErrChallengeExpired  = errors.New("pending challenge expired")
	ErrChallengeMismatch = errors.New("pending challenge bound to another principal")
	ErrBackend           = errors.New("challenge backend unavailable")
)

// PendingChallenge is a single-use record bound to one principal and one
// factor attempt.
type PendingChallenge struct {
	PrincipalID string
	Kind        uint8
	Handle      string
	Data        []byte
	ExpiresAt   int64
}

type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "apc"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// Key returns the Redis key for a challenge. Handles are hashed so that
// caller-supplied values never shape the key space.
func (s *ChallengeStore) Key(principalID string, kind uint8, handle string) string {
	sum := sha256.Sum256([]byte(handle))
	return s.prefix + ":" + principalID + ":" + strconv.Itoa(int(kind)) + ":" + base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *ChallengeStore) Save(ctx context.Context, record *PendingChallenge, ttl time.Duration) error {
	if record == nil || record.PrincipalID == "" || record.Handle == "" {
		return errors.New("pending challenge requires principal and handle")
	}
	if ttl <= 0 {
		return errors.New("pending challenge ttl must be > 0")
	}
	if record.ExpiresAt == 0 {
		record.ExpiresAt = s.now().Add(ttl).Unix()
	}
	encoded, err := encodePendingChallenge(record)
	if err != nil {
		return err
	}
	key := s.Key(record.PrincipalID, record.Kind, record.Handle)
	if err := s.redis.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Consume atomically reads and deletes a challenge. A challenge can be
// consumed at most once whatever the outcome of the attempt that consumed it.
func (s *ChallengeStore) Consume(ctx context.Context, principalID string, kind uint8, handle string) (*PendingChallenge, error) {
	if principalID == "" || handle == "" {
		return nil, ErrChallengeNotFound
	}
	data, err := s.redis.GetDel(ctx, s.Key(principalID, kind, handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	record, err := decodePendingChallenge(data)
	if err != nil {
		return nil, err
	}
	if record.PrincipalID != principalID || record.Kind != kind || record.Handle != handle {
		return nil, ErrChallengeMismatch
	}
	if s.now().Unix() > record.ExpiresAt {
		return nil, ErrChallengeExpired
	}
	return record, nil
}

func encodePendingChallenge(record *PendingChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)
	buf.WriteByte(record.Kind)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.PrincipalID) > 65535 || len(record.Handle) > 65535 {
		return nil, errors.New("pending challenge field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.PrincipalID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.PrincipalID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Handle))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Handle)
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(record.Data))); err != nil {
		return nil, err
	}
	buf.Write(record.Data)

	return buf.Bytes(), nil
}

func decodePendingChallenge(data []byte) (*PendingChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid pending challenge version")
	}

	record := &PendingChallenge{}
	if record.Kind, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	principal, err := readString16(reader)
	if err != nil {
		return nil, err
	}
	record.PrincipalID = principal

	handle, err := readString16(reader)
	if err != nil {
		return nil, err
	}
	record.Handle = handle

	var dataLen uint32
	if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
		return nil, err
	}
	if int64(dataLen) > int64(reader.Len()) {
		return nil, errors.New("pending challenge data truncated")
	}
	record.Data = make([]byte, dataLen)
	if _, err := io.ReadFull(reader, record.Data); err != nil {
		return nil, err
	}

	return record, nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
