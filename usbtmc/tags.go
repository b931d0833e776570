package usbtmc

// bTagGen cycles the bulk-transfer tag through [1,255]. Callers read the
// in-use tag with current, then call advance once the bulk-OUT carrying
// it has gone out successfully; advance snapshots the tag just used (for
// last_bTag, which abort control-requests need) and rolls the generator
// forward. There is no lock here: spec.md §5 requires a single-threaded
// owner, one Run() in flight at a time.
type bTagGen struct {
	value byte
}

func newBTagGen() *bTagGen {
	return &bTagGen{value: 1}
}

// current returns the tag that the next bulk-OUT header should carry.
func (g *bTagGen) current() byte {
	return g.value
}

// advance records the tag just used and rolls the counter to the next
// value in [1,255], wrapping 0 back to 1.
func (g *bTagGen) advance() byte {
	used := g.value
	g.value++
	if g.value == 0 {
		g.value = 1
	}
	return used
}

// rtbTagGen cycles the status-byte tag through [2,127], the same
// copy-then-increment discipline as bTagGen but over a different range
// (spec.md §4.3).
type rtbTagGen struct {
	value byte
}

func newRTBTagGen() *rtbTagGen {
	return &rtbTagGen{value: 2}
}

func (g *rtbTagGen) current() byte {
	return g.value
}

func (g *rtbTagGen) advance() byte {
	used := g.value
	g.value++
	if g.value > 127 {
		g.value = 2
	}
	return used
}
