package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"staffdesk/internal/platform/recordstore"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// IdempotencyPath holds one node per replayable response.
const IdempotencyPath = "idempotency"

type idempotencyEntry struct {
	RequestHash string `json:"requestHash"`
	Response    string `json:"response"`
	CreatedAt   string `json:"createdAt"`
}

// IdempotencyStore remembers the response to a mutation so a retried request
// with the same Idempotency-Key gets the same answer instead of a second run.
type IdempotencyStore struct {
	records recordstore.Store
	ttl     time.Duration
}

func NewIdempotencyStore(records recordstore.Store, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{records: records, ttl: ttl}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func idempotencyPath(userID, endpoint, key string) string {
	return recordstore.Join(IdempotencyPath, RequestHash([]byte(userID+"\x00"+endpoint+"\x00"+key)))
}

func (s *IdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.records == nil || key == "" {
		return nil, false, nil
	}
	node, err := s.records.Read(ctx, idempotencyPath(userID, endpoint, key))
	if err != nil {
		return nil, false, err
	}
	if !node.Exists() {
		return nil, false, nil
	}
	var entry idempotencyEntry
	if err := node.Decode(&entry); err != nil {
		return nil, false, err
	}
	if s.ttl > 0 {
		if created, err := time.Parse(time.RFC3339, entry.CreatedAt); err == nil && time.Since(created) > s.ttl {
			return nil, false, nil
		}
	}
	if entry.RequestHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return json.RawMessage(entry.Response), true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil || s.records == nil || key == "" {
		return nil
	}
	entry := idempotencyEntry{
		RequestHash: requestHash,
		Response:    string(response),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	return s.records.Update(ctx, recordstore.Updates{idempotencyPath(userID, endpoint, key): entry})
}
