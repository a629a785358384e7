package entry

// DeviceRegistry interns dev_t values into small integer ids, so a dir
// entry only has to carry an int32 rather than a full uint64. Populated
// lazily as stats are observed. The reverse mapping (Dev) lets the walker
// compare a freshly stat'd child's dev_t against its parent directory's;
// the dump writer emits the small id itself as the "dev" value.
type DeviceRegistry struct {
	forward map[uint64]int32
	reverse []uint64
}

// NewDeviceRegistry returns an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{forward: make(map[uint64]int32)}
}

// ID interns dev, returning its small id (allocating a new one on first
// sight).
func (r *DeviceRegistry) ID(dev uint64) int32 {
	if id, ok := r.forward[dev]; ok {
		return id
	}
	id := int32(len(r.reverse))
	r.forward[dev] = id
	r.reverse = append(r.reverse, dev)
	return id
}

// Dev returns the dev_t that was interned as id, if any.
func (r *DeviceRegistry) Dev(id int32) (uint64, bool) {
	if id < 0 || int(id) >= len(r.reverse) {
		return 0, false
	}
	return r.reverse[id], true
}
