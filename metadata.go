package framepipe

// Meta is one auxiliary per-frame record attachable to a Parameters, such
// as a device pose sample. Concrete kinds are distinguished by their Go
// type; MetaKind names the kind for logs and diagnostics.
//
// Records are created by the producer of the auxiliary data, attached to
// exactly one Parameters, and read-only afterwards.
type Meta interface {
	MetaKind() string
}

// FindMeta returns the first metadata record of type M attached to p,
// scanning in insertion order. The second result is false when no record
// of that type is attached; the lookup never fails on a miss.
func FindMeta[M Meta](p *Parameters) (M, bool) {
	var zero M
	if p == nil {
		return zero, false
	}
	for _, m := range p.metas {
		if v, ok := m.(M); ok {
			return v, true
		}
	}
	return zero, false
}

// DevicePose is one timestamped motion sample: device orientation and
// translation from a motion sensor, paired 1:1 with a video frame for
// motion compensation.
type DevicePose struct {
	// Orientation is the device orientation quaternion (w, x, y, z).
	Orientation [4]float64

	// Translation is the device translation in meters.
	Translation [3]float64

	// Timestamp is the sample time in microseconds. Within one pose
	// stream, timestamps are non-decreasing.
	Timestamp int64
}

// MetaKind implements Meta.
func (*DevicePose) MetaKind() string { return "device-pose" }
