package rms

// compact squeezes every free block out of the data region in one forward
// pass. Live blocks keep their size and relative order; each is moved down
// to the end of the previously kept block and relinked to it. The record
// chain ends up as the physical back-chain of live blocks only and the
// free list is emptied.
//
// Compaction is not a content mutation: the version is left alone. Block
// offsets change, so the header cache is reset. The store header is not
// flushed here; callers flush once the pass succeeded.
func (rs *recordStore) compact() error {
	buf := make([]byte, compactChunk)

	dst := rs.hdr.DataStart
	prev := NoBlock
	kept, dropped := 0, 0

	for cur := rs.hdr.DataStart; cur < rs.hdr.DataEnd; {
		b, err := rs.readBlockHeader(cur)
		if err != nil {
			return err
		}

		next := b.end()

		if b.isFree() {
			dropped++
			cur = next

			continue
		}

		if dst != cur {
			err = rs.moveBytes(dst.payload(), cur.payload(), int64(b.capacity()), buf)
			if err != nil {
				return err
			}
		}

		b.Offset = dst
		b.Next = prev

		err = rs.writeBlockHeader(&b)
		if err != nil {
			return err
		}

		kept++
		prev = dst
		dst = dst.add(b.Size)
		cur = next
	}

	reclaimed := rs.hdr.DataEnd - dst

	rs.hdr.FirstRecord = prev
	rs.hdr.FirstFree = NoBlock
	rs.hdr.DataEnd = dst
	rs.cache.reset()

	rs.log.Debug().
		Int("kept", kept).
		Int("dropped", dropped).
		Int32("reclaimed", int32(reclaimed)).
		Msg("compacted")

	return nil
}

// moveBytes copies n bytes from src down to dst (dst <= src) through buf.
// Chunks are copied front to back, so overlapping ranges are safe.
func (rs *recordStore) moveBytes(dst, src, n int64, buf []byte) error {
	for n > 0 {
		k := min(n, int64(len(buf)))

		err := rs.readAt(buf[:k], src)
		if err != nil {
			return err
		}

		err = rs.writeAt(buf[:k], dst)
		if err != nil {
			return err
		}

		src += k
		dst += k
		n -= k
	}

	return nil
}
