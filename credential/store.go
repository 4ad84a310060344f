package credential

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCredentialNotFound is returned when the presented credential ID does not exist.
var ErrCredentialNotFound = errors.New("credential not found")

// ErrCredentialExpired is returned when the presented credential is past its expiry.
var ErrCredentialExpired = errors.New("credential expired")

// ErrDigestMismatch is returned when the credential ID exists but the secret is wrong.
var ErrDigestMismatch = errors.New("credential digest mismatch")

// ErrReuseDetected is returned when a superseded credential is presented.
// The whole family is revoked as a side effect before this error surfaces.
var ErrReuseDetected = errors.New("credential reuse detected")

// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReuse    int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusMismatch int64 = 4
)

const issueScript = `
redis.call("HSET", KEYS[1],
  "subject", ARGV[1],
  "tenant", ARGV[2],
  "family", ARGV[3],
  "digest", ARGV[4],
  "parent", "",
  "issued_at", ARGV[5],
  "expires_at", ARGV[6],
  "revoked", "0",
  "source_ip", ARGV[9],
  "user_agent", ARGV[10])
redis.call("PEXPIRE", KEYS[1], ARGV[7])
redis.call("SADD", KEYS[2], ARGV[8])
redis.call("PEXPIRE", KEYS[2], ARGV[7])
redis.call("SADD", KEYS[3], ARGV[3])
redis.call("PEXPIRE", KEYS[3], ARGV[7])
return 1
`

var issueLua = redis.NewScript(issueScript)

const rotateScript = `
local function revoke_member(key, reason, now)
  if redis.call("EXISTS", key) == 1 and redis.call("HGET", key, "revoked") ~= "1" then
    redis.call("HSET", key, "revoked", "1", "revoked_reason", reason, "revoked_at", now)
    return 1
  end
  return 0
end

local f = redis.call("HMGET", KEYS[1], "digest", "revoked", "expires_at", "subject", "tenant", "family", "revoked_reason")
if not f[1] then
  return {0}
end

local digest = f[1]
local revoked = f[2]
local expires_at = tonumber(f[3])
local subject = f[4]
local tenant = f[5]
local family = f[6]
local family_set = ARGV[9] .. family

if digest ~= ARGV[1] then
  return {4}
end

if revoked == "1" then
  if f[7] == "expired" then
    return {1}
  end
  local ids = redis.call("SMEMBERS", family_set)
  local killed = 0
  for _, id in ipairs(ids) do
    killed = killed + revoke_member(ARGV[7] .. id, ARGV[8], ARGV[5])
  end
  return {2, subject, family, killed}
end

if expires_at <= tonumber(ARGV[5]) then
  redis.call("HSET", KEYS[1], "revoked", "1", "revoked_reason", "expired", "revoked_at", ARGV[5])
  return {1}
end

redis.call("HSET", KEYS[1],
  "revoked", "1",
  "revoked_reason", "rotated",
  "revoked_at", ARGV[5],
  "last_used_at", ARGV[5],
  "replaced_by", ARGV[3])

local child_key = ARGV[7] .. ARGV[3]
local child_expires = tonumber(ARGV[5]) + math.floor(tonumber(ARGV[6]) / 1000)
redis.call("HSET", child_key,
  "subject", subject,
  "tenant", tenant,
  "family", family,
  "digest", ARGV[4],
  "parent", ARGV[2],
  "issued_at", ARGV[5],
  "expires_at", child_expires,
  "revoked", "0",
  "source_ip", ARGV[10],
  "user_agent", ARGV[11])
redis.call("PEXPIRE", child_key, ARGV[6])
redis.call("SADD", family_set, ARGV[3])
redis.call("PEXPIRE", family_set, ARGV[6])
redis.call("PEXPIRE", ARGV[12] .. subject, ARGV[6])
return {3, subject, family, child_expires}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeFamilyScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  if redis.call("EXISTS", key) == 1 and redis.call("HGET", key, "revoked") ~= "1" then
    redis.call("HSET", key, "revoked", "1", "revoked_reason", ARGV[2], "revoked_at", ARGV[3])
    revoked = revoked + 1
  end
end
return revoked
`

var revokeFamilyLua = redis.NewScript(revokeFamilyScript)

const revokeSubjectScript = `
local families = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, family in ipairs(families) do
  local ids = redis.call("SMEMBERS", ARGV[1] .. family)
  for _, id in ipairs(ids) do
    local key = ARGV[2] .. id
    if redis.call("EXISTS", key) == 1 and redis.call("HGET", key, "revoked") ~= "1" then
      redis.call("HSET", key, "revoked", "1", "revoked_reason", ARGV[3], "revoked_at", ARGV[4])
      revoked = revoked + 1
    end
  end
end
return revoked
`

var revokeSubjectLua = redis.NewScript(revokeSubjectScript)

// Meta is request provenance recorded on issued and rotated credentials.
type Meta struct {
	SourceIP  string
	UserAgent string
}

// RotateResult carries the outcome of a rotation attempt. On
// [ErrReuseDetected] the SubjectID, FamilyID, and RevokedCount fields are
// still populated so callers can report the event.
type RotateResult struct {
	Child        *Credential
	SubjectID    string
	FamilyID     string
	RevokedCount int64
}

// Store persists rotation families in Redis, one hash per credential plus
// set indexes per family and per subject.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a credential [Store]. prefix namespaces every key; ttl is
// the lifetime granted to each issued or rotated credential.
func NewStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "tw"
	}
	return &Store{redis: redisClient, prefix: prefix, ttl: ttl}
}

// TTL returns the per-credential lifetime the store grants.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "default"
	}
	return tenantID
}

func (s *Store) credPrefix(tenantID string) string {
	return s.prefix + ":c:" + normalizeTenantID(tenantID) + ":"
}

func (s *Store) credKey(tenantID, id string) string {
	return s.credPrefix(tenantID) + id
}

func (s *Store) familyPrefix(tenantID string) string {
	return s.prefix + ":f:" + normalizeTenantID(tenantID) + ":"
}

func (s *Store) familyKey(tenantID, familyID string) string {
	return s.familyPrefix(tenantID) + familyID
}

func (s *Store) subjectPrefix(tenantID string) string {
	return s.prefix + ":s:" + normalizeTenantID(tenantID) + ":"
}

func (s *Store) subjectKey(tenantID, subjectID string) string {
	return s.subjectPrefix(tenantID) + subjectID
}

// Issue persists the root credential of a new family and indexes it under
// the family and the subject.
func (s *Store) Issue(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.ID == "" || cred.SubjectID == "" || cred.FamilyID == "" {
		return errors.New("credential: incomplete credential")
	}

	now := time.Now().Unix()
	cred.IssuedAt = now
	cred.ExpiresAt = now + int64(s.ttl/time.Second)

	err := issueLua.Run(
		ctx,
		s.redis,
		[]string{
			s.credKey(cred.TenantID, cred.ID),
			s.familyKey(cred.TenantID, cred.FamilyID),
			s.subjectKey(cred.TenantID, cred.SubjectID),
		},
		cred.SubjectID,
		normalizeTenantID(cred.TenantID),
		cred.FamilyID,
		hex.EncodeToString(cred.Digest[:]),
		now,
		cred.ExpiresAt,
		s.ttl.Milliseconds(),
		cred.ID,
		cred.SourceIP,
		cred.UserAgent,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate atomically supersedes the presented credential with a child bearing
// nextDigest. The digest compare, the parent revocation, and the child write
// run in one Lua script, so among concurrent presenters of the same
// credential exactly one receives the child; the rest observe a superseded
// parent and trip family-wide revocation. Each rotation refreshes the
// family and subject index TTLs so a family kept alive by routine rotation
// stays reachable for [Store.RevokeAll].
func (s *Store) Rotate(
	ctx context.Context,
	tenantID, credentialID string,
	providedDigest [32]byte,
	childID string,
	childDigest [32]byte,
	meta Meta,
) (*RotateResult, error) {
	now := time.Now().Unix()

	raw, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.credKey(tenantID, credentialID)},
		hex.EncodeToString(providedDigest[:]),
		credentialID,
		childID,
		hex.EncodeToString(childDigest[:]),
		now,
		s.ttl.Milliseconds(),
		s.credPrefix(tenantID),
		string(ReasonReuseDetected),
		s.familyPrefix(tenantID),
		meta.SourceIP,
		meta.UserAgent,
		s.subjectPrefix(tenantID),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrCredentialNotFound)
	case rotateStatusExpired:
		return nil, ErrCredentialExpired
	case rotateStatusMismatch:
		return nil, ErrDigestMismatch
	case rotateStatusReuse:
		res := &RotateResult{}
		if len(parts) >= 4 {
			res.SubjectID, _ = scriptString(parts[1])
			res.FamilyID, _ = scriptString(parts[2])
			res.RevokedCount, _ = parts[3].(int64)
		}
		return res, ErrReuseDetected
	case rotateStatusRotated:
		if len(parts) < 4 {
			return nil, fmt.Errorf("%w: missing rotate script payload", ErrRedisUnavailable)
		}
		subject, _ := scriptString(parts[1])
		family, _ := scriptString(parts[2])
		expiresAt, _ := parts[3].(int64)

		return &RotateResult{
			Child: &Credential{
				ID:        childID,
				SubjectID: subject,
				TenantID:  normalizeTenantID(tenantID),
				FamilyID:  family,
				Digest:    childDigest,
				ParentID:  credentialID,
				IssuedAt:  now,
				ExpiresAt: expiresAt,
				SourceIP:  meta.SourceIP,
				UserAgent: meta.UserAgent,
			},
			SubjectID: subject,
			FamilyID:  family,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// RevokeFamily marks every credential in the family revoked with the given
// reason. Already-revoked members keep their original reason. Returns the
// number of credentials newly revoked.
func (s *Store) RevokeFamily(ctx context.Context, tenantID, familyID string, reason Reason) (int64, error) {
	count, err := revokeFamilyLua.Run(
		ctx,
		s.redis,
		[]string{s.familyKey(tenantID, familyID)},
		s.credPrefix(tenantID),
		string(reason),
		time.Now().Unix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// RevokeAll revokes every family belonging to the subject. Returns the
// number of credentials newly revoked.
func (s *Store) RevokeAll(ctx context.Context, tenantID, subjectID string, reason Reason) (int64, error) {
	count, err := revokeSubjectLua.Run(
		ctx,
		s.redis,
		[]string{s.subjectKey(tenantID, subjectID)},
		s.familyPrefix(tenantID),
		s.credPrefix(tenantID),
		string(reason),
		time.Now().Unix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// Get loads one credential. Returns [ErrCredentialNotFound] for unknown or
// expired-and-evicted IDs.
func (s *Store) Get(ctx context.Context, tenantID, credentialID string) (*Credential, error) {
	fields, err := s.redis.HGetAll(ctx, s.credKey(tenantID, credentialID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, errors.Join(redis.Nil, ErrCredentialNotFound)
	}

	cred := &Credential{
		ID:            credentialID,
		SubjectID:     fields["subject"],
		TenantID:      fields["tenant"],
		FamilyID:      fields["family"],
		ParentID:      fields["parent"],
		ReplacedBy:    fields["replaced_by"],
		Revoked:       fields["revoked"] == "1",
		RevokedReason: Reason(fields["revoked_reason"]),
		SourceIP:      fields["source_ip"],
		UserAgent:     fields["user_agent"],
	}

	digest, err := hex.DecodeString(fields["digest"])
	if err != nil || len(digest) != len(cred.Digest) {
		return nil, fmt.Errorf("%w: corrupt credential digest", ErrRedisUnavailable)
	}
	copy(cred.Digest[:], digest)

	cred.IssuedAt, _ = strconv.ParseInt(fields["issued_at"], 10, 64)
	cred.ExpiresAt, _ = strconv.ParseInt(fields["expires_at"], 10, 64)
	cred.RevokedAt, _ = strconv.ParseInt(fields["revoked_at"], 10, 64)
	cred.LastUsedAt, _ = strconv.ParseInt(fields["last_used_at"], 10, 64)

	return cred, nil
}

// IsValid reports whether the credential exists, matches the digest, and is
// neither revoked nor expired. It never mutates state.
func (s *Store) IsValid(ctx context.Context, tenantID, credentialID string, digest [32]byte) (bool, error) {
	cred, err := s.Get(ctx, tenantID, credentialID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return false, nil
		}
		return false, err
	}
	if cred.Digest != digest {
		return false, nil
	}
	return cred.Active(time.Now().Unix()), nil
}

// FamilyMembers returns the credential IDs currently indexed for a family.
func (s *Store) FamilyMembers(ctx context.Context, tenantID, familyID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.familyKey(tenantID, familyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// SubjectFamilies returns the family IDs currently indexed for a subject.
func (s *Store) SubjectFamilies(ctx context.Context, tenantID, subjectID string) ([]string, error) {
	families, err := s.redis.SMembers(ctx, s.subjectKey(tenantID, subjectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return families, nil
}

func scriptString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
