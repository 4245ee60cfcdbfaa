package geom

// Mix hashes a run seed, a tick number, and an agent handle into 64 random
// bits (splitmix64 finalizer). Parallel workers use it instead of sharing a
// *rand.Rand, so draws do not depend on how agents are partitioned.
func Mix(seed int64, tick uint64, id int) uint64 {
	z := uint64(seed) ^ (tick * 0x9e3779b97f4a7c15) ^ (uint64(id) * 0xbf58476d1ce4e5b9)
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Bit returns bit i of a Mix result as a sign: +1 or -1.
func Bit(bits uint64, i uint) float64 {
	if bits>>i&1 == 1 {
		return 1
	}
	return -1
}
