package response

import "encoding/xml"

// propStatKey groups a bucket of properties that share a response status
// and error condition/description, so the rendered PROPPATCH response has
// one <propstat> per distinct outcome rather than one per property.
type propStatKey struct {
	status      int
	condition   string
	description string
}

// PropStatBuilder accumulates per-property outcomes and groups them by
// (status, condition, description) before rendering, mirroring the
// original's PropStatBuilder.
type PropStatBuilder struct {
	buckets map[propStatKey][]xml.Name
	order   []propStatKey
}

// NewPropStatBuilder returns an empty builder.
func NewPropStatBuilder() *PropStatBuilder {
	return &PropStatBuilder{buckets: make(map[propStatKey][]xml.Name)}
}

func (b *PropStatBuilder) insert(key propStatKey, prop xml.Name) *PropStatBuilder {
	if _, ok := b.buckets[key]; !ok {
		b.order = append(b.order, key)
	}
	b.buckets[key] = append(b.buckets[key], prop)
	return b
}

// InsertOK records prop as successfully applied (status 200).
func (b *PropStatBuilder) InsertOK(prop xml.Name) *PropStatBuilder {
	return b.insert(propStatKey{status: 200}, prop)
}

// InsertWithStatus records prop with an arbitrary status and no error
// condition or description.
func (b *PropStatBuilder) InsertWithStatus(prop xml.Name, status int) *PropStatBuilder {
	return b.insert(propStatKey{status: status}, prop)
}

// InsertErrorWithDescription records prop as failed with a human-readable
// description but no DAV:error condition.
func (b *PropStatBuilder) InsertErrorWithDescription(prop xml.Name, status int, description string) *PropStatBuilder {
	return b.insert(propStatKey{status: status, description: description}, prop)
}

// InsertPreconditionFailed records prop as failed with a DAV:error
// condition element.
func (b *PropStatBuilder) InsertPreconditionFailed(prop xml.Name, status int, condition string) *PropStatBuilder {
	return b.insert(propStatKey{status: status, condition: condition}, prop)
}

// InsertPreconditionFailedWithDescription records prop as failed with both
// a condition and a description.
func (b *PropStatBuilder) InsertPreconditionFailedWithDescription(prop xml.Name, status int, condition, description string) *PropStatBuilder {
	return b.insert(propStatKey{status: status, condition: condition, description: description}, prop)
}

// Build renders the accumulated buckets into PropStat entries, one per
// distinct (status, condition, description) combination, in first-insert
// order for deterministic output.
func (b *PropStatBuilder) Build() []PropStat {
	out := make([]PropStat, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, PropStat{
			Properties:  b.buckets[key],
			Status:      key.status,
			Condition:   key.condition,
			Description: key.description,
		})
	}
	return out
}
