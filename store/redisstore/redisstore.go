// Package redisstore implements store.TokenStore on Redis. Refresh-token
// consumption and family revocation run as Lua scripts so a record can
// only be claimed once regardless of how many nodes race on it.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/axisboard/authority/store"
)

const (
	claimStatusNotFound int64 = 0
	claimStatusUsed     int64 = 1
	claimStatusClaimed  int64 = 2
)

// claimScript marks an unused record as consumed and returns its fields.
// Status 0: no live record. Status 1: already consumed (replay). Status 2:
// claimed; the pre-update fields follow.
const claimScript = `
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
  return {0}
end
local used = redis.call("HGET", key, "used_at")
if used and used ~= "" then
  return {1}
end
local expires = tonumber(redis.call("HGET", key, "expires_at") or "0")
if expires <= tonumber(ARGV[1]) then
  redis.call("DEL", key)
  return {0}
end
redis.call("HSET", key, "used_at", ARGV[2])
return {2,
  redis.call("HGET", key, "subject_id"),
  redis.call("HGET", key, "family_id"),
  redis.call("HGET", key, "generation"),
  redis.call("HGET", key, "expires_at"),
  redis.call("HGET", key, "created_at")}
`

var claimLua = redis.NewScript(claimScript)

// saveScript refuses the write when the family tombstone exists, closing
// the race between a winning rotation's insert and a concurrent revocation.
const saveScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "subject_id", ARGV[1],
  "family_id", ARGV[2],
  "generation", ARGV[3],
  "expires_at", ARGV[4],
  "created_at", ARGV[5],
  "used_at", "")
redis.call("PEXPIREAT", KEYS[1], ARGV[6])
redis.call("SADD", KEYS[3], ARGV[7])
redis.call("PEXPIRE", KEYS[3], ARGV[8])
redis.call("SADD", KEYS[4], ARGV[2])
redis.call("PEXPIRE", KEYS[4], ARGV[8])
return 1
`

var saveLua = redis.NewScript(saveScript)

// revokeFamilyScript plants the tombstone and drops the family index in
// one invocation, returning the member token IDs for the caller to delete.
// Only declared keys are touched, so the script holds on Redis Cluster. A
// claim racing the record deletions cannot mint a successor: the insert
// hits the tombstone and fails with ErrFamilyRevoked.
const revokeFamilyScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], "1", "PX", ARGV[1])
return ids
`

var revokeFamilyLua = redis.NewScript(revokeFamilyScript)

// touchSessionScript rewrites the activity field inside the stored blob in
// one evaluation, so concurrent touches cannot clobber each other's reads.
// The key's remaining TTL is carried over.
const touchSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local sess = cjson.decode(data)
sess["lat"] = tonumber(ARGV[1])
local ttl = redis.call("PTTL", KEYS[1])
redis.call("SET", KEYS[1], cjson.encode(sess))
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

// Config carries the key namespace and retention for the Redis store.
type Config struct {
	// Prefix namespaces every key this store writes.
	Prefix string

	// RefreshTTL bounds how long family indexes and tombstones are kept.
	// It should match the refresh-token lifetime.
	RefreshTTL time.Duration
}

// Store is a Redis-backed store.TokenStore.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	refreshTTL time.Duration
}

// New creates a Store over the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "authority"
	}
	ttl := cfg.RefreshTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{redis: client, prefix: prefix, refreshTTL: ttl}
}

func (s *Store) tokenKey(tokenID string) string {
	return s.prefix + ":rt:" + tokenID
}

func (s *Store) familyKey(familyID string) string {
	return s.prefix + ":fam:" + familyID
}

func (s *Store) familyTombstoneKey(familyID string) string {
	return s.prefix + ":famrev:" + familyID
}

func (s *Store) subjectFamilyKey(subjectID string) string {
	return s.prefix + ":subfam:" + subjectID
}

func (s *Store) revokedAccessKey(tokenID string) string {
	return s.prefix + ":rev:" + tokenID
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":sess:" + sessionID
}

func (s *Store) subjectSessionKey(subjectID string) string {
	return s.prefix + ":subsess:" + subjectID
}

func (s *Store) auditKey() string {
	return s.prefix + ":audit"
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
}

// SaveRefreshToken persists a new generation record unless the family has
// been revoked, in which case it returns store.ErrFamilyRevoked.
func (s *Store) SaveRefreshToken(ctx context.Context, rec *store.RefreshTokenRecord) error {
	result, err := saveLua.Run(ctx, s.redis,
		[]string{
			s.tokenKey(rec.TokenID),
			s.familyTombstoneKey(rec.FamilyID),
			s.familyKey(rec.FamilyID),
			s.subjectFamilyKey(rec.SubjectID),
		},
		rec.SubjectID,
		rec.FamilyID,
		rec.Generation,
		rec.ExpiresAt.UnixMilli(),
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		rec.TokenID,
		s.refreshTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if result == 0 {
		return store.ErrFamilyRevoked
	}
	return nil
}

// ClaimAndAdvance consumes the record in one script evaluation. Exactly one
// of any number of concurrent callers on the same tokenID succeeds.
func (s *Store) ClaimAndAdvance(ctx context.Context, tokenID string) (*store.RefreshTokenRecord, error) {
	now := time.Now()
	result, err := claimLua.Run(ctx, s.redis,
		[]string{s.tokenKey(tokenID)},
		now.UnixMilli(),
		now.UnixMilli(),
	).Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: empty claim script response", store.ErrStoreUnavailable)
	}

	status, ok := result[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claim script status", store.ErrStoreUnavailable)
	}

	switch status {
	case claimStatusNotFound:
		return nil, store.ErrTokenNotFound
	case claimStatusUsed:
		return nil, store.ErrTokenAlreadyUsed
	case claimStatusClaimed:
		if len(result) < 6 {
			return nil, fmt.Errorf("%w: truncated claim script response", store.ErrStoreUnavailable)
		}
		gen, _ := strconv.Atoi(scriptString(result[3]))
		return &store.RefreshTokenRecord{
			TokenID:    tokenID,
			SubjectID:  scriptString(result[1]),
			FamilyID:   scriptString(result[2]),
			Generation: gen,
			ExpiresAt:  scriptMilli(result[4]),
			CreatedAt:  scriptMilli(result[5]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown claim script status %d", store.ErrStoreUnavailable, status)
	}
}

// RevokeFamily plants a tombstone that outlives the longest possible
// refresh token, then deletes every record of the family. The tombstone
// lands first, so no new generation can be written while the records are
// being cleared.
func (s *Store) RevokeFamily(ctx context.Context, familyID string) error {
	tokenIDs, err := revokeFamilyLua.Run(ctx, s.redis,
		[]string{s.familyKey(familyID), s.familyTombstoneKey(familyID)},
		s.refreshTTL.Milliseconds(),
	).StringSlice()
	if err != nil {
		return unavailable(err)
	}
	if len(tokenIDs) == 0 {
		return nil
	}

	keys := make([]string, len(tokenIDs))
	for i, tokenID := range tokenIDs {
		keys[i] = s.tokenKey(tokenID)
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// FamilyRevoked reports whether the family tombstone exists.
func (s *Store) FamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.familyTombstoneKey(familyID)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// RevokeFamiliesForSubject revokes every family indexed for the subject.
//
// The member read and the per-family revocations are separate round trips,
// so a family created mid-call can slip through. The stray family is caught
// by tombstone checks on its next rotation or by a repeat invocation.
func (s *Store) RevokeFamiliesForSubject(ctx context.Context, subjectID string) error {
	familyIDs, err := s.redis.SMembers(ctx, s.subjectFamilyKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return unavailable(err)
	}
	for _, familyID := range familyIDs {
		if err := s.RevokeFamily(ctx, familyID); err != nil {
			return err
		}
	}
	if err := s.redis.Del(ctx, s.subjectFamilyKey(subjectID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// RevokeAccessToken places the token ID on the revocation list until the
// token's own expiry, after which the entry lapses.
func (s *Store) RevokeAccessToken(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.revokedAccessKey(tokenID), "1", ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// IsAccessTokenRevoked is a point lookup against the revocation list.
func (s *Store) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.revokedAccessKey(tokenID)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

type sessionBlob struct {
	SubjectID      string `json:"sub"`
	IPAddress      string `json:"ip,omitempty"`
	UserAgent      string `json:"ua,omitempty"`
	CreatedAt      int64  `json:"cat"`
	LastActivityAt int64  `json:"lat"`
	ExpiresAt      int64  `json:"exp"`
}

// SaveSession writes the session blob and indexes it under the subject,
// scored by creation time so the oldest session sorts first.
func (s *Store) SaveSession(ctx context.Context, sess *store.Session) error {
	data, err := json.Marshal(sessionBlob{
		SubjectID:      sess.SubjectID,
		IPAddress:      sess.IPAddress,
		UserAgent:      sess.UserAgent,
		CreatedAt:      sess.CreatedAt.UnixMilli(),
		LastActivityAt: sess.LastActivityAt.UnixMilli(),
		ExpiresAt:      sess.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.SessionID), data, ttl)
		pipe.ZAdd(ctx, s.subjectSessionKey(sess.SubjectID), redis.Z{
			Score:  float64(sess.CreatedAt.UnixMilli()),
			Member: sess.SessionID,
		})
		pipe.PExpire(ctx, s.subjectSessionKey(sess.SubjectID), s.refreshTTL)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetSession returns the session or store.ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrSessionNotFound
		}
		return nil, unavailable(err)
	}

	var blob sessionBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("%w: corrupt session blob", store.ErrStoreUnavailable)
	}

	return &store.Session{
		SessionID:      sessionID,
		SubjectID:      blob.SubjectID,
		IPAddress:      blob.IPAddress,
		UserAgent:      blob.UserAgent,
		CreatedAt:      time.UnixMilli(blob.CreatedAt),
		LastActivityAt: time.UnixMilli(blob.LastActivityAt),
		ExpiresAt:      time.UnixMilli(blob.ExpiresAt),
	}, nil
}

// UpdateSessionActivity stamps the new activity timestamp into the blob in
// a single script evaluation, keeping the key's remaining TTL.
func (s *Store) UpdateSessionActivity(ctx context.Context, sessionID string, at time.Time) error {
	n, err := touchSessionLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID)},
		at.UnixMilli(),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes the session and its subject index entry. Deleting
// an absent session is not an error.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionID))
		pipe.ZRem(ctx, s.subjectSessionKey(sess.SubjectID), sessionID)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// SessionsForSubject returns live sessions oldest first. Index entries whose
// session key has expired are pruned on the way through.
func (s *Store) SessionsForSubject(ctx context.Context, subjectID string) ([]*store.Session, error) {
	indexKey := s.subjectSessionKey(subjectID)
	sessionIDs, err := s.redis.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}

	sessions := make([]*store.Session, 0, len(sessionIDs))
	var stale []interface{}
	for _, sessionID := range sessionIDs {
		sess, err := s.GetSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				stale = append(stale, sessionID)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.ZRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}
	return sessions, nil
}

// AppendAuditRecord appends one JSON row to the audit list.
func (s *Store) AppendAuditRecord(ctx context.Context, rec *store.AuditRecord) error {
	data, err := json.Marshal(struct {
		SubjectID string `json:"subject_id"`
		Action    string `json:"action"`
		Resource  string `json:"resource"`
		Granted   bool   `json:"granted"`
		Timestamp int64  `json:"ts"`
	}{rec.SubjectID, rec.Action, rec.Resource, rec.Granted, rec.Timestamp.UnixMilli()})
	if err != nil {
		return err
	}
	if err := s.redis.RPush(ctx, s.auditKey(), data).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Ping reports Redis availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}

var _ store.TokenStore = (*Store)(nil)

func scriptString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func scriptMilli(v interface{}) time.Time {
	ms, _ := strconv.ParseInt(scriptString(v), 10, 64)
	return time.UnixMilli(ms)
}
