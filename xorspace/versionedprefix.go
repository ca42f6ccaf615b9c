package xorspace

// VersionedPrefix pairs a Prefix with a monotonically increasing version
// number. The version strictly increases with each churn event processed
// for that prefix.
type VersionedPrefix struct {
	Prefix  Prefix
	Version uint64
}

// IntoParts returns the prefix and version as a pair, replacing the
// Into<(Prefix,u64)> conversion pattern of the source implementation.
func (vp VersionedPrefix) IntoParts() (Prefix, uint64) {
	return vp.Prefix, vp.Version
}
