package xid

// The X server hands out resource ids of the form
// client_base | (counter & resource-id-mask), with the mask covering only
// the low bits. That leaves bits 21..30 clear on every real id, so a
// virtual output can be tagged with the ordinal of the split region it
// was carved from while still pointing back at the hardware id it came
// from. The daemon verifies the mask assumption against the server's
// setup reply once per session.
const (
	SplitShift = 21
	SplitMask  = 0x7FE00000

	// MaxGeneration is the largest ordinal that fits the reserved range.
	MaxGeneration = SplitMask >> SplitShift
)

// Augment tags a real resource id with a generation ordinal.
// Generation 0 yields a plain real id again.
func Augment(id, generation uint32) uint32 {
	return (id &^ SplitMask) | (generation << SplitShift)
}

// Base strips the generation tag, yielding the originating real id.
func Base(id uint32) uint32 {
	return id &^ SplitMask
}

// Generation extracts the split ordinal; 0 means the id is real.
func Generation(id uint32) uint32 {
	return (id & SplitMask) >> SplitShift
}

// IsSynthetic reports whether the id carries a generation tag.
func IsSynthetic(id uint32) bool {
	return id&SplitMask != 0
}
