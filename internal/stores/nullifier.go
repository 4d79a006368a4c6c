package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	nullifierRecordVersion1 = 1
)

var (
	ErrNullifierBackend = errors.New("nullifier backend unavailable")
	ErrNullifierInvalid = errors.New("nullifier invalid")
)

// NullifierRecord is what gets persisted for every accepted proof nullifier.
type NullifierRecord struct {
	SessionID  string
	AcceptedAt int64
}

// NullifierStore is the replay guard. Claim is the only mutation that
// authentication relies on: it inserts the nullifier iff it is absent.
type NullifierStore interface {
	Has(ctx context.Context, nullifier string) (bool, error)
	Claim(ctx context.Context, nullifier string, record *NullifierRecord) (bool, error)
	Release(ctx context.Context, nullifier, sessionID string) error
}

const releaseNullifierScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, 1) ~= 1 then
  return -1
end
local sid_len = string.byte(data, 10) * 256 + string.byte(data, 11)
local sid = string.sub(data, 12, 11 + sid_len)
if sid ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`

var releaseNullifierLua = redis.NewScript(releaseNullifierScript)

// RedisNullifierStore keeps accepted nullifiers in Redis. With a zero
// retention every nullifier is kept forever.
type RedisNullifierStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisNullifierStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *RedisNullifierStore {
	if prefix == "" {
		prefix = "azn"
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisNullifierStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *RedisNullifierStore) key(nullifier string) string {
	return s.prefix + ":" + nullifier
}

func (s *RedisNullifierStore) Has(ctx context.Context, nullifier string) (bool, error) {
	if nullifier == "" {
		return false, ErrNullifierInvalid
	}
	n, err := s.redis.Exists(ctx, s.key(nullifier)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNullifierBackend, err)
	}
	return n > 0, nil
}

// Claim performs SET NX. A false result means another request already
// accepted the nullifier.
func (s *RedisNullifierStore) Claim(ctx context.Context, nullifier string, record *NullifierRecord) (bool, error) {
	if nullifier == "" {
		return false, ErrNullifierInvalid
	}
	if record == nil {
		record = &NullifierRecord{AcceptedAt: time.Now().Unix()}
	}
	encoded, err := encodeNullifierRecord(record)
	if err != nil {
		return false, err
	}

	ok, err := s.redis.SetNX(ctx, s.key(nullifier), encoded, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNullifierBackend, err)
	}
	return ok, nil
}

// Release drops a claim, but only the one made for sessionID.
func (s *RedisNullifierStore) Release(ctx context.Context, nullifier, sessionID string) error {
	if nullifier == "" {
		return ErrNullifierInvalid
	}
	res, err := releaseNullifierLua.Run(ctx, s.redis, []string{s.key(nullifier)}, sessionID).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNullifierBackend, err)
	}
	if res < 0 {
		return errors.New("invalid nullifier record version")
	}
	return nil
}

// Get returns the stored record for a nullifier.
func (s *RedisNullifierStore) Get(ctx context.Context, nullifier string) (*NullifierRecord, error) {
	data, err := s.redis.Get(ctx, s.key(nullifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNullifierBackend, err)
	}
	return decodeNullifierRecord(data)
}

// MemoryNullifierStore is a process-local replay guard.
type MemoryNullifierStore struct {
	mu      sync.Mutex
	records map[string]NullifierRecord
}

func NewMemoryNullifierStore() *MemoryNullifierStore {
	return &MemoryNullifierStore{
		records: make(map[string]NullifierRecord),
	}
}

func (s *MemoryNullifierStore) Has(_ context.Context, nullifier string) (bool, error) {
	if nullifier == "" {
		return false, ErrNullifierInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[nullifier]
	return ok, nil
}

func (s *MemoryNullifierStore) Claim(_ context.Context, nullifier string, record *NullifierRecord) (bool, error) {
	if nullifier == "" {
		return false, ErrNullifierInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[nullifier]; ok {
		return false, nil
	}
	var rec NullifierRecord
	if record != nil {
		rec = *record
	}
	s.records[nullifier] = rec
	return true, nil
}

func (s *MemoryNullifierStore) Release(_ context.Context, nullifier, sessionID string) error {
	if nullifier == "" {
		return ErrNullifierInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[nullifier]; ok && rec.SessionID == sessionID {
		delete(s.records, nullifier)
	}
	return nil
}

// Len reports how many nullifiers have been accepted.
func (s *MemoryNullifierStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Layout: version(1) | acceptedAt(8) | sidLen(2) | sid.
// The release script depends on these offsets.
func encodeNullifierRecord(record *NullifierRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(nullifierRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.AcceptedAt); err != nil {
		return nil, err
	}
	if len(record.SessionID) > 65535 {
		return nil, errors.New("nullifier session id length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.SessionID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.SessionID)

	return buf.Bytes(), nil
}

func decodeNullifierRecord(data []byte) (*NullifierRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != nullifierRecordVersion1 {
		return nil, errors.New("invalid nullifier record version")
	}

	record := &NullifierRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.AcceptedAt); err != nil {
		return nil, err
	}

	var sidLen uint16
	if err := binary.Read(reader, binary.BigEndian, &sidLen); err != nil {
		return nil, err
	}
	sid := make([]byte, sidLen)
	if _, err := io.ReadFull(reader, sid); err != nil {
		return nil, err
	}
	record.SessionID = string(sid)

	return record, nil
}
