// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

// findSeam finds the end of the next chunk in buf.
//
// The boundary is searched with a variant of the rsync rolling checksum
// (see https://rsync.samba.org/tech_report/node3.html): a window of p.Min bytes
// slides over buf, and the first window end (past p.Min) where the checksum
// AND'd with p.Mask is zero is the boundary. If there is no such position
// before p.Max, the chunk is cut at p.Max.
//
// findSeam assumes len(buf) >= p.Max.
func findSeam(buf []byte, p Params) int {
	var (
		a      uint32 = 1
		b      uint32
		window = uint32(p.Min)
		mask   = p.Mask
	)

	for i, v := range buf[:p.Min] {
		a += uint32(v)
		b += (window - uint32(i) + 1) * uint32(v)
	}

	a &= mask
	b &= mask

	// bounds check hints
	buf = buf[:p.Max]
	tail := buf[:p.Max-p.Min]

	for i := p.Min; i < len(buf); i++ {
		nk, nl := uint32(tail[i-p.Min]), uint32(buf[i])

		na := a - nk + nl
		nb := b - (window+1)*nk + na

		if (na+nb<<16)&mask == 0 {
			return i
		}

		a, b = na, nb
	}

	return p.Max
}
