package util

// WipeBytes best-effort zeroes the provided byte slice in place.
// The compiler may elide this; it reduces the window during which
// secrets linger in memory but is not a guarantee.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
