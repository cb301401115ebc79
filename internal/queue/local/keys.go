package local

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const urlScheme = "local://"

// queuePrefix returns the base prefix for one queue.
// Format: q/{queue}/
func queuePrefix(queue string) string {
	return fmt.Sprintf("q/%s/", queue)
}

func cfgKey(queue string) []byte {
	return []byte(queuePrefix(queue) + "cfg")
}

func tagsKey(queue string) []byte {
	return []byte(queuePrefix(queue) + "tags")
}

// msgKey addresses a message record.
// Format: q/{queue}/msg/{id}
func msgKey(queue string, msgID [16]byte) []byte {
	prefix := queuePrefix(queue) + "msg/"
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	copy(key[len(prefix):], msgID[:])
	return key
}

// readyKey indexes an available message within its group.
// Format: q/{queue}/ready/{group}/{id}
func readyKey(queue, group string, msgID [16]byte) []byte {
	prefix := queuePrefix(queue) + "ready/" + group + "/"
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	copy(key[len(prefix):], msgID[:])
	return key
}

func readyPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "ready/")
}

// parseReadyKey extracts group and message id from a ready index key.
func parseReadyKey(queue string, key []byte) (group string, msgID [16]byte, ok bool) {
	prefix := queuePrefix(queue) + "ready/"
	if len(key) < len(prefix)+1+16 {
		return "", msgID, false
	}
	rest := key[len(prefix):]
	sep := strings.LastIndexByte(string(rest[:len(rest)-16]), '/')
	if sep < 0 {
		return "", msgID, false
	}
	group = string(rest[:sep])
	copy(msgID[:], rest[len(rest)-16:])
	return group, msgID, true
}

// delayKey indexes a delayed message by its fire time.
// Format: q/{queue}/delay/{fire_ms}/{id}
func delayKey(queue string, fireMs int64, msgID [16]byte) []byte {
	prefix := queuePrefix(queue) + "delay/"
	key := make([]byte, len(prefix)+8+16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(fireMs))
	copy(key[len(prefix)+8:], msgID[:])
	return key
}

func delayPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "delay/")
}

// inflightKey counts leased messages per group.
// Format: q/{queue}/inflight/{group}
func inflightKey(queue, group string) []byte {
	return []byte(queuePrefix(queue) + "inflight/" + group)
}

func inflightPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "inflight/")
}

// leaseKey addresses an active lease by its receipt handle.
// Format: q/{queue}/lease/{receipt}
func leaseKey(queue, receipt string) []byte {
	return []byte(queuePrefix(queue) + "lease/" + receipt)
}

func leasePrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "lease/")
}

// leaseIdxKey indexes leases by expiry for the reclaim scan.
// Format: q/{queue}/lease_idx/{expires_ms}/{receipt}
func leaseIdxKey(queue string, expiresMs int64, receipt string) []byte {
	prefix := queuePrefix(queue) + "lease_idx/"
	key := make([]byte, len(prefix)+8+len(receipt))
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(expiresMs))
	copy(key[len(prefix)+8:], receipt)
	return key
}

func leaseIdxPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "lease_idx/")
}

// dedupKey addresses a deduplication window entry.
// Format: q/{queue}/dedup/{group}/{dedup_id}
func dedupKey(queue, group, dedupID string) []byte {
	return []byte(queuePrefix(queue) + "dedup/" + group + "/" + dedupID)
}

// dedupIdxKey indexes dedup entries by expiry. The value stores the
// dedup key so the sweep can delete both without parsing.
// Format: q/{queue}/dedup_idx/{expires_ms}/{group}/{dedup_id}
func dedupIdxKey(queue string, expiresMs int64, group, dedupID string) []byte {
	prefix := queuePrefix(queue) + "dedup_idx/"
	suffix := group + "/" + dedupID
	key := make([]byte, len(prefix)+8+len(suffix))
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(expiresMs))
	copy(key[len(prefix)+8:], suffix)
	return key
}

func dedupIdxPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "dedup_idx/")
}

func urlFor(queue string) string { return urlScheme + queue }

func nameFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, urlScheme) {
		return "", false
	}
	name := strings.TrimPrefix(url, urlScheme)
	return name, name != ""
}
