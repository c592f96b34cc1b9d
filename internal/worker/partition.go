package worker

// block is a contiguous index range [begin, end) of a chunk handled by one
// pool task.
type block struct {
	begin int
	end   int
}

// partitionBlocks splits n indices into at most parts contiguous blocks
// whose lengths differ by at most one. Earlier blocks take the remainder.
func partitionBlocks(n, parts int) []block {
	if n <= 0 {
		return nil
	}

	parts = max(1, min(parts, n))
	size, rem := n/parts, n%parts

	blocks := make([]block, 0, parts)
	begin := 0
	for i := 0; i < parts; i++ {
		end := begin + size
		if i < rem {
			end++
		}
		blocks = append(blocks, block{begin: begin, end: end})
		begin = end
	}

	return blocks
}
