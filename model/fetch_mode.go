package model

import "strings"

// FetchMode selects the concurrency-control strategy used to read and write
// the account pair of a transfer.
type FetchMode string

const (
	// FetchOptimistic reads without locks and rejects the write if either
	// account version moved in the meantime.
	FetchOptimistic FetchMode = "OPTIMISTIC"
	// FetchPessimistic takes an exclusive row lock on both accounts.
	FetchPessimistic FetchMode = "PESSIMISTIC"
	// FetchSerializable runs the whole transfer under serializable isolation.
	FetchSerializable FetchMode = "SERIALIZABLE"
)

func (m FetchMode) Valid() bool {
	switch m {
	case FetchOptimistic, FetchPessimistic, FetchSerializable:
		return true
	}
	return false
}

// ParseFetchMode accepts any casing and surrounding whitespace.
func ParseFetchMode(s string) (FetchMode, bool) {
	m := FetchMode(strings.ToUpper(strings.TrimSpace(s)))
	return m, m.Valid()
}
