package levenshtein

const asciiMax = 256

// distanceMyers64 runs Myers' bit-parallel recurrence with s1 packed into a
// single word. len(s1) must be in [1, 64].
// See Hyyrö, "Explaining and extending the bit-parallel approximate string
// matching algorithm of Myers" (2001).
func (ctx *Context) distanceMyers64(s1, s2 []rune) int {
	for i, r := range s1 {
		if r < asciiMax {
			ctx.peq[r] |= 1 << i
		}
	}

	vp := ^uint64(0)
	vn := uint64(0)
	score := len(s1)
	last := uint64(1) << (len(s1) - 1)

	for _, r := range s2 {
		pm := ctx.match(s1, r)

		x := pm | vn
		d0 := ((vp + (x & vp)) ^ vp) | x
		hn := vp & d0
		hp := vn | ^(d0 | vp)

		x = (hp << 1) | 1
		vn = x & d0
		vp = (hn << 1) | ^(x | d0)

		if hp&last != 0 {
			score++
		}

		if hn&last != 0 {
			score--
		}
	}

	for _, r := range s1 {
		if r < asciiMax {
			ctx.peq[r] = 0
		}
	}

	return score
}

// match returns the positions of r in s1 as a bit set.
func (ctx *Context) match(s1 []rune, r rune) uint64 {
	if r < asciiMax {
		return ctx.peq[r]
	}

	var pm uint64

	for i, c := range s1 {
		if c == r {
			pm |= 1 << i
		}
	}

	return pm
}
