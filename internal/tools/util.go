package tools

import "io"

const maxResponseBytes = 1 << 20 // 1 MiB, generous for a single tool result

func readLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBytes))
}
