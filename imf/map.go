package imf

// HeaderMap is the decoded, read-only-after-construction result of parsing
// one message's header block. Keys are unique under ASCII case folding
// because HeaderName normalises at construction; values have had folding
// whitespace collapsed and leading/trailing ASCII whitespace trimmed.
type HeaderMap struct {
	values map[HeaderName]string
	// order records each distinct header name once, in the order it was
	// first seen; a repeated header (e.g. multiple "Received" lines) keeps
	// only its first position and its last value. Get/Set only see the last
	// value under a given name, matching the "unordered mapping" contract of
	// the data model.
	order []HeaderName
}

func newHeaderMap() *HeaderMap {
	return &HeaderMap{values: make(map[HeaderName]string)}
}

func (m *HeaderMap) set(name HeaderName, value string) {
	if _, exists := m.values[name]; !exists {
		m.order = append(m.order, name)
	}
	m.values[name] = value
}

// Get returns the decoded value for name and whether it was present.
func (m *HeaderMap) Get(name HeaderName) (string, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Len returns the number of distinct header names present.
func (m *HeaderMap) Len() int { return len(m.values) }

// Names returns the header names in first-seen order.
func (m *HeaderMap) Names() []HeaderName {
	out := make([]HeaderName, len(m.order))
	copy(out, m.order)
	return out
}
