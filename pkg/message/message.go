// Package message provides the bounded, best-effort status record transport a
// device driver reports through
package message

import (
	"unicode/utf8"
)

// MaxRecordLen denotes the maximum length (in bytes) of a single record
const MaxRecordLen = 59

// Record denotes a single, length-capped text record
type Record string

// NewRecord creates a record from the given text, truncating it at the last
// UTF-8 boundary fitting into MaxRecordLen bytes
func NewRecord(text string) Record {
	if len(text) <= MaxRecordLen {
		return Record(text)
	}

	cut := MaxRecordLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	return Record(text[:cut])
}

// String returns the text of the record
func (r Record) String() string {
	return string(r)
}

// Sender denotes the outbound side of a message channel
type Sender interface {

	// TrySend enqueues a record if space is available and reports whether it
	// was accepted. It never blocks
	TrySend(r Record) bool
}

// Receiver denotes the inbound side of a message channel
type Receiver interface {

	// TryReceive dequeues a record, if any. It never blocks
	TryReceive() (Record, bool)
}

// Discard denotes a Sender that drops every record
type Discard struct{}

// TrySend drops the record
func (Discard) TrySend(Record) bool {
	return false
}
