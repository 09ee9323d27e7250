// Package rest implements a minimal HTTP/1.1 request/response exchange
// tunneled through the Blobstore2 transport, mirroring the way HPE's own
// ilorest tooling talks to the local Redfish service.
package rest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/metal3-community/uefi-settings/hii"
	"github.com/metal3-community/uefi-settings/transport"
)

// maxAttempts bounds the retry loop around a single request; HPE's CLI
// tooling retries up to this many times before giving up.
const maxAttempts = 10

// maxHeaders bounds the fixed-capacity header scan done while parsing a
// response, avoiding an allocating, streaming HTTP parser for a payload
// that's never read from a real net.Conn.
const maxHeaders = 64

// Client issues REST requests against the local Redfish endpoint through a
// freshly initialized Blobstore2 channel per call, matching the reference
// tooling's behavior of never reusing a channel across requests.
type Client struct {
	log     logr.Logger
	libPath string
	host    string
}

// NewClient builds a Client bound to libPath (the ilorest_chif.so location)
// and the Host header value sent with every request.
func NewClient(log logr.Logger, libPath, host string) *Client {
	return &Client{log: log, libPath: libPath, host: host}
}

func (c *Client) Get(endpoint string) (int, []byte, error) {
	return c.do("GET", endpoint, nil)
}

func (c *Client) Post(endpoint string, body []byte) (int, []byte, error) {
	return c.do("POST", endpoint, body)
}

func (c *Client) Patch(endpoint string, body []byte) (int, []byte, error) {
	return c.do("PATCH", endpoint, body)
}

func (c *Client) Put(endpoint string, body []byte) (int, []byte, error) {
	return c.do("PUT", endpoint, body)
}

func (c *Client) do(method, endpoint string, body []byte) (int, []byte, error) {
	request := generateRequestBytes(method, endpoint, body, c.defaultHeaders(len(body)))

	chif, err := transport.NewChif(c.log, c.libPath)
	if err != nil {
		return 0, nil, err
	}
	defer chif.Close()

	if err := chif.Ping(); err != nil {
		return 0, nil, err
	}

	bs, err := transport.NewBlobstore2(chif)
	if err != nil {
		return 0, nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := bs.MakeRequest(request)
		if err == nil {
			return parseResponse(raw)
		}
		lastErr = err
		c.log.Info("retrying blobstore request", "method", method, "endpoint", endpoint, "attempt", attempt, "error", err.Error())
	}

	return 0, nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) defaultHeaders(bodyLen int) []string {
	return []string{
		fmt.Sprintf("Host: %s", c.host),
		"Accept-Encoding: identity",
		"Content-Type: application/json; charset=utf-8",
		"Accept: */*",
		"Connection: Keep-Alive",
		fmt.Sprintf("Content-Length: %d", bodyLen),
	}
}

// generateRequestBytes builds a raw HTTP/1.1 request, null-terminated as the
// foreign library expects.
func generateRequestBytes(method, endpoint string, body []byte, headers []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, endpoint)
	for _, h := range headers {
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.Write(body)
	b.WriteByte(0)
	return b.Bytes()
}

// parseResponse scans a raw HTTP/1.1 response's status line and headers
// with a fixed-capacity header table, then returns the status code and body.
func parseResponse(raw []byte) (int, []byte, error) {
	headerEnd := bytes.Index(raw, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		return 0, nil, hii.ErrHttpIncomplete
	}

	lines := strings.Split(string(raw[:headerEnd]), "\r\n")
	if len(lines) == 0 {
		return 0, nil, hii.ErrHttpIncomplete
	}
	if len(lines)-1 > maxHeaders {
		return 0, nil, fmt.Errorf("%w: more than %d headers", hii.ErrMalformed, maxHeaders)
	}

	statusParts := strings.SplitN(lines[0], " ", 3)
	if len(statusParts) < 2 {
		return 0, nil, hii.ErrHttpIncomplete
	}
	status, err := strconv.Atoi(statusParts[1])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bad status line %q", hii.ErrMalformed, lines[0])
	}

	body := raw[headerEnd+4:]
	return status, body, nil
}
