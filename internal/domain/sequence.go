package domain

import "fmt"

// SequenceStream names an independent radicado numbering stream. The value doubles as the code prefix.
type SequenceStream string

const (
	StreamRequest  SequenceStream = "RAD"
	StreamExternal SequenceStream = "EXT"
	StreamAudit    SequenceStream = "UPD"
)

// AllSequenceStreams lists every stream the generator bootstraps.
var AllSequenceStreams = []SequenceStream{StreamRequest, StreamExternal, StreamAudit}

// Prefix returns the code prefix of the stream.
func (s SequenceStream) Prefix() string {
	return string(s)
}

// FormatCode renders n as PREFIX-NNNNN. Values above 99999 widen rather than wrap.
func (s SequenceStream) FormatCode(n int64) string {
	return fmt.Sprintf("%s-%05d", s.Prefix(), n)
}
