// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hashchop

// Chunk is a piece of the stream emitted by Reader or Writer.
type Chunk struct {
	// chunk contents
	Data []byte
	// offset of the chunk in the stream
	Offset int64
}

// Len returns the chunk length.
func (c Chunk) Len() int {
	return len(c.Data)
}
