package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *ByteRange
		wantErr error
	}{
		{name: "absent", header: "", want: nil},
		{name: "closed", header: "bytes=100-199", want: &ByteRange{Start: 100, End: 199}},
		{name: "open ended", header: "bytes=500-", want: &ByteRange{Start: 500, End: -1}},
		{name: "suffix", header: "bytes=-300", want: &ByteRange{Start: -1, End: -1, SuffixLength: 300}},
		{name: "whitespace", header: " bytes= 1 - 2 ", want: &ByteRange{Start: 1, End: 2}},
		{name: "other unit ignored", header: "items=1-2", want: nil},
		{name: "multi range ignored", header: "bytes=0-1,5-6", want: nil},
		{name: "garbage ignored", header: "bytes=abc-def", want: nil},
		{name: "no dash ignored", header: "bytes=12", want: nil},
		{name: "end before start", header: "bytes=200-100", wantErr: ErrMalformedRange},
		{name: "empty suffix", header: "bytes=-0", wantErr: ErrMalformedRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteRange_Header(t *testing.T) {
	assert.Equal(t, "bytes=100-199", ByteRange{Start: 100, End: 199}.Header())
	assert.Equal(t, "bytes=5-", ByteRange{Start: 5, End: -1}.Header())
	assert.Equal(t, "bytes=-10", ByteRange{Start: -1, End: -1, SuffixLength: 10}.Header())
}

func TestByteRange_Resolve(t *testing.T) {
	tests := []struct {
		name        string
		r           ByteRange
		size        int64
		first, last int64
		unsat       bool
	}{
		{name: "inside", r: ByteRange{Start: 100, End: 199}, size: 1000, first: 100, last: 199},
		{name: "end clamped", r: ByteRange{Start: 900, End: 5000}, size: 1000, first: 900, last: 999},
		{name: "open ended", r: ByteRange{Start: 10, End: -1}, size: 1000, first: 10, last: 999},
		{name: "suffix", r: ByteRange{Start: -1, End: -1, SuffixLength: 100}, size: 1000, first: 900, last: 999},
		{name: "suffix longer than object", r: ByteRange{Start: -1, End: -1, SuffixLength: 5000}, size: 1000, first: 0, last: 999},
		{name: "start past end", r: ByteRange{Start: 1000, End: -1}, size: 1000, unsat: true},
		{name: "empty object", r: ByteRange{Start: 0, End: 10}, size: 0, unsat: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last, err := tt.r.Resolve(tt.size)
			if tt.unsat {
				assert.ErrorIs(t, err, ErrMalformedRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.last, last)
		})
	}
}
