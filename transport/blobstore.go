package transport

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/metal3-community/uefi-settings/hii"
)

// Blobstore2 status codes returned in every packet exchange's response
// header.
const (
	statusSuccess     = 0
	statusNotModified = 20
)

// recvTimeout is the fixed receive timeout applied to every channel, taken
// from the same default HPE's own tooling configures.
const recvTimeout = 60 * time.Second

// volatileNamespace is the blob-store namespace every REST-over-Blobstore2
// exchange uses; the library keeps other namespaces for non-REST consumers.
const volatileNamespace = "volatile"

// keyLength is the length of the random alphanumeric request/response keys
// generated per exchange, matching the original tooling's key generator.
const keyLength = 10

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// genKey returns a random alphanumeric blob-store key of keyLength bytes.
func genKey() (string, error) {
	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating blob key: %w", err)
	}
	for i, b := range buf {
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(buf), nil
}

// channel is the subset of *Chif's behavior Blobstore2 drives: packet
// exchange plus the size getters and request-template factories needed to
// build and chunk requests. Expressed as an interface, matching the
// module's varstore.VarStore test-double pattern, so the protocol logic
// here is testable without ilorest_chif.so present.
type channel interface {
	SetRecvTimeout(ms uint32) error
	MaxWriteSize() uint32
	MaxReadSize() uint32
	WriteRequestSize() uint32
	ReadRequestSize() uint32
	RestImmediateRequestSize() uint32
	RestResponseFixedSize() uint32
	ResponseHeaderBlobSize() uint32
	PacketExchange(req []byte) ([]byte, error)
	RestImmediate(dataLen uint32, responseKey, namespace string) []byte
	RestImmediateBlobDesc(requestKey, responseKey, namespace string) []byte
	CreateNotBlobentry(requestKey, namespace string) []byte
	WriteFragment(blockOffset, count uint32, requestKey, namespace string) []byte
	ReadFragment(blockOffset, count uint32, responseKey, namespace string) []byte
	FinalizeBlob(requestKey, namespace string) []byte
	GetInfo(responseKey, namespace string) []byte
	DeleteBlob(key, namespace string) []byte
}

var _ channel = (*Chif)(nil)

// Blobstore2 implements the chunked Blobstore2 request/response protocol on
// top of a bound channel: small payloads go through the immediate REST
// path in one packet exchange, larger ones are written as a fragmented blob
// entry and finalized. Either way the response comes back inline or is read
// back fragment by fragment, as its receive mode says.
type Blobstore2 struct {
	chif channel
}

// NewBlobstore2 wraps an initialized Chif channel, configuring its receive
// timeout.
func NewBlobstore2(chif *Chif) (*Blobstore2, error) {
	if err := chif.SetRecvTimeout(uint32(recvTimeout.Milliseconds())); err != nil {
		return nil, err
	}
	return &Blobstore2{chif: chif}, nil
}

// exchange sends req through the channel's packet exchange, validates the
// echoed sequence number embedded by the library at the template's offset 2,
// and validates the response's status code.
func (b *Blobstore2) exchange(req []byte) ([]byte, error) {
	if len(req) < 4 {
		return nil, fmt.Errorf("%w: request shorter than sequence header", hii.ErrMalformed)
	}
	wantSeq := binary.LittleEndian.Uint16(req[2:4])

	resp, err := b.chif.PacketExchange(req)
	if err != nil {
		return nil, err
	}

	if len(resp) < 12 {
		return nil, fmt.Errorf("%w: response shorter than fixed header", hii.ErrMalformed)
	}
	if gotSeq := binary.LittleEndian.Uint16(resp[2:4]); gotSeq != wantSeq {
		return nil, hii.ErrSequenceMismatch
	}
	if code := binary.LittleEndian.Uint32(resp[8:12]); code != statusSuccess && code != statusNotModified {
		return nil, &hii.TransportError{Code: code}
	}

	return resp, nil
}

// MakeRequest sends a raw REST request (as built by the rest package) over
// Blobstore2 and returns the response body. Requests that fit within the
// channel's immediate-request budget go through the immediate REST path in
// a single packet exchange; larger requests are written as a fragmented
// blob entry and finalized. The response is then taken inline or read back
// fragment by fragment, according to its receive mode.
func (b *Blobstore2) MakeRequest(body []byte) ([]byte, error) {
	threshold := b.chif.MaxWriteSize() + b.chif.RestImmediateRequestSize()
	if uint32(len(body)) < threshold {
		return b.immediateRequest(body)
	}
	return b.fragmentedRequest(body)
}

func (b *Blobstore2) immediateRequest(body []byte) ([]byte, error) {
	responseKey, err := genKey()
	if err != nil {
		return nil, err
	}

	header := b.chif.RestImmediate(uint32(len(body)), responseKey, volatileNamespace)
	if header == nil {
		return nil, fmt.Errorf("%w: rest_immediate returned no template", hii.ErrTransportInit)
	}

	req := make([]byte, len(header)+len(body))
	copy(req, header)
	copy(req[len(header):], body)

	resp, err := b.exchange(req)
	if err != nil {
		return nil, err
	}

	return b.resolveResponse(resp, responseKey)
}

// resolveResponse inspects the fixed IloFixedResponse header embedded in resp
// (sequence and status already validated by exchange) and dispatches on its
// receive_mode field: 0 means the payload rode along inline in resp itself,
// 1 means it must be fetched fragment by fragment under responseKey. Any
// other value is a protocol violation.
func (b *Blobstore2) resolveResponse(resp []byte, responseKey string) ([]byte, error) {
	if len(resp) < 20 {
		return nil, fmt.Errorf("%w: response shorter than fixed response header", hii.ErrMalformed)
	}
	receiveMode := binary.LittleEndian.Uint32(resp[12:16])
	dataLen := binary.LittleEndian.Uint32(resp[16:20])

	switch receiveMode {
	case 0:
		fixedSize := int(b.chif.RestResponseFixedSize())
		start := fixedSize
		end := start + int(dataLen)
		if end > len(resp) {
			return nil, fmt.Errorf("%w: immediate response data length exceeds buffer", hii.ErrMalformed)
		}
		return resp[start:end], nil
	case 1:
		return b.readFragmentedResponse(responseKey)
	default:
		return nil, fmt.Errorf("%w: %d", hii.ErrBadReceiveMode, receiveMode)
	}
}

func (b *Blobstore2) fragmentedRequest(body []byte) ([]byte, error) {
	requestKey, err := genKey()
	if err != nil {
		return nil, err
	}
	responseKey, err := genKey()
	if err != nil {
		return nil, err
	}

	createReq := b.chif.CreateNotBlobentry(requestKey, volatileNamespace)
	if _, err := b.exchange(createReq); err != nil {
		return nil, fmt.Errorf("creating blob entry: %w", err)
	}

	chunkSize := int(b.chif.MaxWriteSize() - b.chif.WriteRequestSize())
	for off := 0; off < len(body); off += chunkSize {
		end := off + chunkSize
		if end > len(body) {
			end = len(body)
		}
		chunk := body[off:end]

		header := b.chif.WriteFragment(uint32(off), uint32(len(chunk)), requestKey, volatileNamespace)
		req := make([]byte, len(header)+len(chunk))
		copy(req, header)
		copy(req[len(header):], chunk)

		if _, err := b.exchange(req); err != nil {
			return nil, fmt.Errorf("writing blob fragment at offset %d: %w", off, err)
		}
	}

	finalizeReq := b.chif.FinalizeBlob(requestKey, volatileNamespace)
	if _, err := b.exchange(finalizeReq); err != nil {
		return nil, fmt.Errorf("finalizing blob entry: %w", err)
	}

	descReq := b.chif.RestImmediateBlobDesc(requestKey, responseKey, volatileNamespace)
	descResp, err := b.exchange(descReq)
	if err != nil {
		return nil, fmt.Errorf("dispatching blob request: %w", err)
	}

	return b.resolveResponse(descResp, responseKey)
}

func (b *Blobstore2) readFragmentedResponse(responseKey string) ([]byte, error) {
	infoReq := b.chif.GetInfo(responseKey, volatileNamespace)
	infoResp, err := b.exchange(infoReq)
	if err != nil {
		return nil, fmt.Errorf("reading blob info: %w", err)
	}
	if len(infoResp) < 16 {
		return nil, fmt.Errorf("%w: blob info response truncated", hii.ErrMalformed)
	}
	total := binary.LittleEndian.Uint32(infoResp[12:16])

	chunkSize := int(b.chif.MaxReadSize() - b.chif.ReadRequestSize())
	headerBlobSize := int(b.chif.ResponseHeaderBlobSize())

	out := make([]byte, 0, total)
	for uint32(len(out)) < total {
		want := chunkSize
		if remaining := int(total) - len(out); remaining < want {
			want = remaining
		}

		req := b.chif.ReadFragment(uint32(len(out)), uint32(want), responseKey, volatileNamespace)
		resp, err := b.exchange(req)
		if err != nil {
			return nil, fmt.Errorf("reading blob fragment at offset %d: %w", len(out), err)
		}

		// The read-fragment response carries a 4-byte count right after the
		// response header blob; the payload follows it.
		dataStart := headerBlobSize + 4
		if dataStart > len(resp) {
			return nil, fmt.Errorf("%w: read-fragment response shorter than header", hii.ErrMalformed)
		}
		chunk := resp[dataStart:]
		if len(chunk) > want {
			chunk = chunk[:want]
		}
		out = append(out, chunk...)
	}

	// HP's own tooling deletes the response blob once it has been read in
	// full; we emulate that so the BMC's blob store doesn't accumulate
	// leaked entries across repeated calls.
	deleteReq := b.chif.DeleteBlob(responseKey, volatileNamespace)
	if _, err := b.exchange(deleteReq); err != nil {
		return nil, fmt.Errorf("deleting response blob: %w", err)
	}

	return out, nil
}
