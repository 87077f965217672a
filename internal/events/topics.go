package events

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "pqrs"

// Topic kinds.
const (
	TopicKindRequest = "request"
	TopicKindEntity  = "entity"
	TopicKindUser    = "user"
)

// Topics builds fanout topic names. Every topic has the form <prefix>.<kind>.<id>.
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder for prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, ". ")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Request is the per-request room.
func (t Topics) Request(id string) string { return t.join(TopicKindRequest, id) }

// Entity is the tenant room that receives new requests.
func (t Topics) Entity(id string) string { return t.join(TopicKindEntity, id) }

// User is the per-user channel for badge counts.
func (t Topics) User(id string) string { return t.join(TopicKindUser, id) }

func (t Topics) join(kind, id string) string {
	return t.prefix + "." + kind + "." + id
}

// Parse splits a topic into its kind and id, rejecting foreign prefixes and wildcards.
func (t Topics) Parse(topic string) (kind, id string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+".")
	if !found {
		return "", "", false
	}
	kind, id, found = strings.Cut(rest, ".")
	if !found || id == "" || strings.ContainsAny(id, ".*> ") {
		return "", "", false
	}
	switch kind {
	case TopicKindRequest, TopicKindEntity, TopicKindUser:
		return kind, id, true
	default:
		return "", "", false
	}
}
