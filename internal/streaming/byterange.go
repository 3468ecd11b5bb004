package streaming

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRange is a well-formed Range header that cannot be satisfied.
var ErrMalformedRange = errors.New("requested range not satisfiable")

// ByteRange is a single HTTP byte range. Exactly one form is used:
// Start..End, Start.. (End == -1), or the last SuffixLength bytes.
type ByteRange struct {
	Start        int64
	End          int64
	SuffixLength int64
}

func (r ByteRange) isSuffix() bool { return r.SuffixLength > 0 }

// ParseRange parses an inbound Range header. It returns (nil, nil) for an
// absent header and for headers the proxy chooses to ignore (non-byte units,
// syntax errors, multiple ranges), in which case the full object is served.
func ParseRange(header string) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	rangeSet, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(rangeSet, ",") {
		return nil, nil
	}
	first, last, ok := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !ok {
		return nil, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return nil, nil
		}
		if n == 0 {
			return nil, ErrMalformedRange
		}
		return &ByteRange{Start: -1, End: -1, SuffixLength: n}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	if last == "" {
		return &ByteRange{Start: start, End: -1}, nil
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < 0 {
		return nil, nil
	}
	if end < start {
		return nil, ErrMalformedRange
	}
	return &ByteRange{Start: start, End: end}, nil
}

// Header renders the range for an upstream request.
func (r ByteRange) Header() string {
	switch {
	case r.isSuffix():
		return fmt.Sprintf("bytes=-%d", r.SuffixLength)
	case r.End < 0:
		return fmt.Sprintf("bytes=%d-", r.Start)
	default:
		return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
	}
}

// Resolve clamps the range against an object of size bytes and returns the
// inclusive first and last offsets.
func (r ByteRange) Resolve(size int64) (first, last int64, err error) {
	if size <= 0 {
		return 0, 0, ErrMalformedRange
	}
	if r.isSuffix() {
		first = size - r.SuffixLength
		if first < 0 {
			first = 0
		}
		return first, size - 1, nil
	}
	if r.Start >= size {
		return 0, 0, ErrMalformedRange
	}
	last = r.End
	if last < 0 || last >= size {
		last = size - 1
	}
	return r.Start, last, nil
}

// ContentRange formats a Content-Range value for a satisfied range.
func ContentRange(first, last, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", first, last, size)
}
