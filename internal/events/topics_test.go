package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicsBuild(t *testing.T) {
	topics := NewTopics("")
	assert.Equal(t, "pqrs.request.r1", topics.Request("r1"))
	assert.Equal(t, "pqrs.entity.e1", topics.Entity("e1"))
	assert.Equal(t, "pqrs.user.u1", topics.User("u1"))

	custom := NewTopics(" tenant. ")
	assert.Equal(t, "tenant.user.u1", custom.User("u1"))
}

func TestTopicsParse(t *testing.T) {
	topics := NewTopics("pqrs")

	tests := []struct {
		topic string
		kind  string
		id    string
		ok    bool
	}{
		{"pqrs.request.abc", TopicKindRequest, "abc", true},
		{"pqrs.entity.e-1", TopicKindEntity, "e-1", true},
		{"pqrs.user.u1", TopicKindUser, "u1", true},
		{"pqrs.area.a1", "", "", false},
		{"other.request.abc", "", "", false},
		{"pqrs.request.", "", "", false},
		{"pqrs.request", "", "", false},
		{"pqrs.request.*", "", "", false},
		{"pqrs.request.>", "", "", false},
		{"pqrs.request.a.b", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, id, ok := topics.Parse(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.id, id)
		})
	}
}
