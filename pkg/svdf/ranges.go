package svdf

// ByteRange is a half-open byte span inside a container, used by upload
// transports to address partial content.
type ByteRange struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// End returns the exclusive end offset.
func (r ByteRange) End() int64 { return r.Offset + r.Length }

// ChunkRanges splits a container of totalSize bytes into fixed-size upload
// chunks. The final chunk carries the remainder. A non-positive chunkSize
// yields a single range covering everything.
func ChunkRanges(totalSize, chunkSize int64) []ByteRange {
	if totalSize <= 0 {
		return nil
	}
	if chunkSize <= 0 || chunkSize >= totalSize {
		return []ByteRange{{Offset: 0, Length: totalSize}}
	}
	ranges := make([]ByteRange, 0, (totalSize+chunkSize-1)/chunkSize)
	for off := int64(0); off < totalSize; off += chunkSize {
		length := chunkSize
		if off+length > totalSize {
			length = totalSize - off
		}
		ranges = append(ranges, ByteRange{Offset: off, Length: length})
	}
	return ranges
}

// DeltaRanges computes the byte ranges of a rebuilt container that differ
// from the prior build: the header plus everything from the prior file
// region's end onward. File unit bytes before that point are carried over
// verbatim by BuildIncremental, so a transport uploading only these ranges
// reconstructs the new container on top of the prior one.
func DeltaRanges(prior *Header, currentSize int64) []ByteRange {
	ranges := []ByteRange{{Offset: 0, Length: HeaderSize}}
	tail := int64(prior.ManifestOffset)
	if tail < HeaderSize {
		tail = HeaderSize
	}
	if currentSize > tail {
		ranges = append(ranges, ByteRange{Offset: tail, Length: currentSize - tail})
	}
	return ranges
}
