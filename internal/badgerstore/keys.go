package badgerstore

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Key layout:
//
//	identity:{name}                       -> identityRecord
//	msg:{id}                              -> messageRecord
//	ts:{unixnano %019d}:{id}              -> empty, age index for the sweep
//	party:{hex(partyID)}:{%019d}:{id}     -> empty, per-party history index
//
// The timestamp is zero padded so lexicographic key order is chronological.
// Party ids are hex encoded so an id containing ':' cannot alias another prefix.
const (
	identityPrefix = "identity:"
	messagePrefix  = "msg:"
	agePrefix      = "ts:"
	partyPrefix    = "party:"
)

func identityKey(name string) []byte {
	return []byte(identityPrefix + name)
}

func messageKey(id string) []byte {
	return []byte(messagePrefix + id)
}

func ageKey(r messageRecord) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", agePrefix, r.Timestamp, r.ID))
}

func partyHistoryPrefix(partyID string) []byte {
	return []byte(partyPrefix + hex.EncodeToString([]byte(partyID)) + ":")
}

func partyKey(partyID string, r messageRecord) []byte {
	return append(partyHistoryPrefix(partyID), fmt.Sprintf("%019d:%s", r.Timestamp, r.ID)...)
}

// indexKeys returns every key a stored message occupies
func indexKeys(r messageRecord) [][]byte {
	keys := [][]byte{messageKey(r.ID), ageKey(r), partyKey(r.SenderID, r)}
	if r.ReceiverID != r.SenderID {
		keys = append(keys, partyKey(r.ReceiverID, r))
	}
	return keys
}

// idFromIndexKey extracts the trailing message id of an age or party key
func idFromIndexKey(key []byte) string {
	s := string(key)
	return s[strings.LastIndex(s, ":")+1:]
}

// parseAgeKey splits ts:{nanos}:{id}
func parseAgeKey(key []byte) (int64, string, bool) {
	parts := strings.SplitN(strings.TrimPrefix(string(key), agePrefix), ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return 0, "", false
	}
	return nanos, parts[1], true
}

func uniqueIDs(ids []string) []string {
	return lo.Uniq(lo.Compact(ids))
}
