package metadata

const (
	// CorrelationIDKey is the header carrying the correlation id. The name is
	// shared with existing peer services and must not change.
	CorrelationIDKey = "correlationId"
	// HandlerNameKey and TopicKey are stamped on messages entering a handler.
	HandlerNameKey = "callflow_handler"
	TopicKey       = "callflow_topic"
	// ReplyTopicKey names the topic a reply was published to.
	ReplyTopicKey = "callflow_reply_topic"
)

// Metadata represents the headers travelling with a request or reply.
type Metadata map[string]string

// Clone returns a shallow copy. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	return m.grow(0)
}

// With returns a copy with key set to value.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.grow(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a copy merged with entries. Entries win on conflict.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.grow(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// CorrelationID returns the correlation id header and whether it was present
// and non-empty.
func (m Metadata) CorrelationID() (string, bool) {
	id, ok := m[CorrelationIDKey]
	return id, ok && id != ""
}

// WithCorrelationID returns a copy carrying id. An empty id leaves the map
// unchanged apart from the copy.
func (m Metadata) WithCorrelationID(id string) Metadata {
	if id == "" {
		return m.Clone()
	}
	return m.With(CorrelationIDKey, id)
}

func (m Metadata) grow(extra int) Metadata {
	cloned := make(Metadata, len(m)+extra)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// New builds Metadata from alternating key/value pairs. A trailing key without
// a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
