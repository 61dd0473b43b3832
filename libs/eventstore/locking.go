package eventstore

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// LockingPolicy selects the advisory lock an append holds while it checks
// its precondition and inserts.
type LockingPolicy int

const (
	// LockDomainIDsHash serializes appends on the same identifier set.
	LockDomainIDsHash LockingPolicy = iota + 1
	// LockLatestSequenceID serializes every append against every other.
	LockLatestSequenceID
	// LockCorrelationID locks on the first identifier only. Use it for
	// single-entity streams that are not shared across writers.
	LockCorrelationID
)

// DefaultLockingPolicy applies when AppendCondition.LockingPolicy is zero.
const DefaultLockingPolicy = LockDomainIDsHash

// Advisory lock namespaces. The subscription engine uses SubscriptionLockNamespace.
const (
	lockNamespaceDomainIDs      int32 = 1
	lockNamespaceLatestSequence int32 = 2
	lockNamespaceCorrelation    int32 = 3

	SubscriptionLockNamespace int32 = 4
	// AppendBarrierNamespace (key 0) is held shared by every append and
	// exclusively by CommittedSequence.
	AppendBarrierNamespace int32 = 5
)

var policyNames = map[LockingPolicy]string{
	LockDomainIDsHash:    "domain_ids_hash",
	LockLatestSequenceID: "latest_sequence_id",
	LockCorrelationID:    "correlation_id",
}

func (p LockingPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("locking_policy(%d)", int(p))
}

// ParseLockingPolicy accepts the String form, case-insensitively. The empty
// string yields DefaultLockingPolicy.
func ParseLockingPolicy(s string) (LockingPolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultLockingPolicy, nil
	}
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLockingPolicy, s)
}

// LockKey is the two-int form of a Postgres advisory lock.
type LockKey struct {
	Namespace int32
	Key       int32
}

// LockKeyFor maps a policy and a canonical (sorted) token list to the lock
// the append must hold. A zero policy means DefaultLockingPolicy.
func LockKeyFor(policy LockingPolicy, tokens []string) (LockKey, error) {
	if policy == 0 {
		policy = DefaultLockingPolicy
	}
	switch policy {
	case LockDomainIDsHash:
		return LockKey{Namespace: lockNamespaceDomainIDs, Key: HashKey(strings.Join(tokens, ","))}, nil
	case LockLatestSequenceID:
		return LockKey{Namespace: lockNamespaceLatestSequence, Key: 0}, nil
	case LockCorrelationID:
		first := ""
		if len(tokens) > 0 {
			first = tokens[0]
		}
		return LockKey{Namespace: lockNamespaceCorrelation, Key: HashKey(first)}, nil
	default:
		return LockKey{}, fmt.Errorf("%w: %d", ErrUnknownLockingPolicy, int(policy))
	}
}

// HashKey folds a BLAKE2b-256 digest of s into an advisory lock key.
func HashKey(s string) int32 {
	sum := blake2b.Sum256([]byte(s))
	return int32(binary.BigEndian.Uint32(sum[:4]))
}
