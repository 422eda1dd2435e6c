// File: internal/engine/collector.go
package engine

import "github.com/lablnet/stepwright/api/schemas"

// Collector is the ordered key/value record built up while executing a
// template or one foreach iteration. It is mutated only by the currently
// executing step, so it needs no locking.
type Collector struct {
	order  []string
	values map[string]any
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{values: make(map[string]any)}
}

// Set stores val under key, preserving first-insertion order.
func (c *Collector) Set(key string, val any) {
	if _, ok := c.values[key]; !ok {
		c.order = append(c.order, key)
	}
	c.values[key] = val
}

// Get returns the value stored under key.
func (c *Collector) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Len reports the number of stored keys.
func (c *Collector) Len() int { return len(c.order) }

// Keys returns the stored keys in insertion order.
func (c *Collector) Keys() []string {
	return append([]string(nil), c.order...)
}

// Clone returns an independent copy. Values are copied shallowly; steps
// never mutate stored values in place.
func (c *Collector) Clone() *Collector {
	n := NewCollector()
	for _, k := range c.order {
		n.Set(k, c.values[k])
	}
	return n
}

// Merge copies every key of other into c, in other's insertion order.
// Existing keys are overwritten.
func (c *Collector) Merge(other *Collector) {
	for _, k := range other.order {
		c.Set(k, other.values[k])
	}
}

// Snapshot flushes the collector contents into one output record.
func (c *Collector) Snapshot() schemas.Record {
	rec := make(schemas.Record, len(c.values))
	for k, v := range c.values {
		rec[k] = v
	}
	return rec
}
