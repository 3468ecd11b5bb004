package streaming

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

// Config tunes upstream fetching.
type Config struct {
	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
	// ReadStallTimeout aborts a fetch when one upstream read blocks this long.
	ReadStallTimeout time.Duration
	BufferSize       int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = 30 * time.Second
	}
	if c.ReadStallTimeout <= 0 {
		c.ReadStallTimeout = 30 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 32 * 1024
	}
	return c
}

// NewHTTPClient builds the upstream client. It has no overall timeout since a
// full video can take arbitrarily long to stream; the dial, header and
// read-stall limits bound each phase instead.
func NewHTTPClient(cfg Config) *http.Client {
	cfg = cfg.withDefaults()
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   100,
			// Byte offsets must refer to the stored representation.
			DisableCompression: true,
		},
	}
}

// stallReader cancels the fetch when a single upstream Read blocks for
// longer than d. The timer is armed only inside Read, so time spent writing
// to a slow client does not count.
type stallReader struct {
	rc     io.ReadCloser
	timer  *time.Timer
	d      time.Duration
	cancel context.CancelFunc
}

func newStallReader(rc io.ReadCloser, d time.Duration, cancel context.CancelFunc) *stallReader {
	t := time.AfterFunc(d, cancel)
	t.Stop()
	return &stallReader{rc: rc, timer: t, d: d, cancel: cancel}
}

func (s *stallReader) Read(p []byte) (int, error) {
	s.timer.Reset(s.d)
	n, err := s.rc.Read(p)
	s.timer.Stop()
	return n, err
}

func (s *stallReader) Close() error {
	s.timer.Stop()
	err := s.rc.Close()
	s.cancel()
	return err
}
