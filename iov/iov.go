// Package iov provides allocation-free helpers for scatter-gather buffer
// lists. A buffer list is an ordered [][]byte of caller-owned memory; the
// i'th byte of the list is defined by concatenating the buffers in order.
// Derived lists borrow into the same memory, they never copy the bytes.
package iov

// Size returns the total length of the buffer list in bytes.
func Size(bufs [][]byte) (n int) {
	for _, b := range bufs {
		n += len(b)
	}
	return
}

// Copy fills dst with buffers from the front of src until exactly n bytes are
// covered, truncating the last buffer written so the lengths sum to n.
// Returns the number of buffers written to dst. src must hold at least n
// bytes and at least one buffer, and dst must be at least as long as the
// prefix of src that covers n bytes.
func Copy(dst, src [][]byte, n int) int {
	size := 0
	for i := 0; ; i++ {
		dst[i] = src[i]
		size += len(src[i])
		if size >= n {
			b := dst[i]
			dst[i] = b[:len(b)-(size-n)]
			return i + 1
		}
	}
}

// Advance returns bufs with the first n bytes logically consumed: buffers
// covered entirely are dropped, and a partially consumed buffer is resliced
// in place from the front. bufs must hold at least n bytes.
func Advance(bufs [][]byte, n int) [][]byte {
	size := 0
	for {
		size += len(bufs[0])
		if size >= n {
			b := bufs[0]
			bufs[0] = b[len(b)-(size-n):]
			return bufs
		}
		bufs = bufs[1:]
	}
}

// Count returns the minimum number of leading buffers whose lengths sum to at
// least n. Zero for n == 0.
func Count(bufs [][]byte, n int) int {
	if n == 0 {
		return 0
	}
	size := 0
	for i := 0; ; i++ {
		size += len(bufs[i])
		if size >= n {
			return i + 1
		}
	}
}
