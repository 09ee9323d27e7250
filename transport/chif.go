// Package transport binds the closed-source ilorest_chif.so shared library
// that HPE iLO ships, and implements the Blobstore2 chunked request/response
// protocol tunneled through it.
package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/go-logr/logr"
	"github.com/metal3-community/uefi-settings/hii"
)

// libSearchPaths is the ordered list of directories probed for
// ilorest_chif.so, matching where HPE's management agent packages install
// it across RPM and Debian based distributions.
var libSearchPaths = []string{
	"/usr/lib64",
	"/usr/local/lib64",
	"/usr/lib",
	"/usr/local/lib",
}

const libName = "ilorest_chif.so"

// chifStatusSuccess is the status code the shared library returns from a
// handle-level call (initialize/create/close/ping/packet exchange) on
// success.
const chifStatusSuccess = 0

// FindLibrary searches libSearchPaths in order for ilorest_chif.so and
// returns the first match.
func FindLibrary() (string, error) {
	for _, dir := range libSearchPaths {
		candidate := filepath.Join(dir, libName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s not found under %v", hii.ErrTransportInit, libName, libSearchPaths)
}

// Chif is a bound handle to ilorest_chif.so: one function pointer per
// exported entry point, resolved once at construction via purego so the
// binding works without cgo, mirroring the closed-source library surface
// original_source/src/lib/ilorest/chif.rs binds through libloading.
//
// The restImmediate through deleteBlob fields below are request-template
// factories: each takes the request's string keys and returns a pointer into library-owned storage
// valid only until Close. Callers never see the raw pointer; the wrapper
// methods copy the declared number of bytes out immediately.
type Chif struct {
	log    logr.Logger
	handle uintptr

	chifInitialize     func() uint32
	chifCreate         func(handle *uintptr) uint32
	chifClose          func(handle uintptr) uint32
	chifPing           func(handle uintptr) uint32
	chifSetRecvTimeout func(handle uintptr, ms uint32) uint32
	chifPacketExchange func(handle uintptr, send uintptr, recv uintptr, recvCap uint32) uint32

	getMaxBufferSize        func() uint32
	sizeOfReadRequest       func() uint32
	sizeOfResponseHdrBlob   func() uint32
	maxReadSize             func() uint32
	maxWriteSize            func() uint32
	sizeOfWriteRequest      func() uint32
	sizeOfRestResponseFixed func() uint32
	sizeOfRestImmediateReq  func() uint32
	sizeOfRestBlobRequest   func() uint32
	sizeOfFinalizeRequest   func() uint32
	sizeOfCreateRequest     func() uint32
	sizeOfInfoRequest       func() uint32
	sizeOfReadResponse      func() uint32
	sizeOfDeleteRequest     func() uint32

	restImmediate         func(dataLen uint32, responseKey, namespace string) uintptr
	restImmediateBlobDesc func(requestKey, responseKey, namespace string) uintptr
	createNotBlobentry    func(requestKey, namespace string) uintptr
	writeFragment         func(blockOffset, count uint32, requestKey, namespace string) uintptr
	readFragment          func(blockOffset, count uint32, responseKey, namespace string) uintptr
	finalizeBlob          func(requestKey, namespace string) uintptr
	getInfo               func(responseKey, namespace string) uintptr
	deleteBlob            func(key, namespace string) uintptr
}

// NewChif loads libPath, resolves every named entry point, then calls
// ChifInitialize followed by ChifCreate to obtain a live handle. A non-zero
// status from either call is surfaced as ErrTransportInit.
func NewChif(log logr.Logger, libPath string) (*Chif, error) {
	lib, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: dlopen %s: %v", hii.ErrTransportInit, libPath, err)
	}

	c := &Chif{log: log}

	register := func(fptr interface{}, name string) {
		purego.RegisterLibFunc(fptr, lib, name)
	}

	register(&c.chifInitialize, "ChifInitialize")
	register(&c.chifCreate, "ChifCreate")
	register(&c.chifClose, "ChifClose")
	register(&c.chifPing, "ChifPing")
	register(&c.chifSetRecvTimeout, "ChifSetRecvTimeout")
	register(&c.chifPacketExchange, "ChifPacketExchange")

	register(&c.getMaxBufferSize, "get_max_buffer_size")
	register(&c.sizeOfReadRequest, "size_of_readRequest")
	register(&c.sizeOfResponseHdrBlob, "size_of_responseHeaderBlob")
	register(&c.maxReadSize, "max_read_size")
	register(&c.maxWriteSize, "max_write_size")
	register(&c.sizeOfWriteRequest, "size_of_writeRequest")
	register(&c.sizeOfRestResponseFixed, "size_of_restResponseFixed")
	register(&c.sizeOfRestImmediateReq, "size_of_restImmediateRequest")
	register(&c.sizeOfRestBlobRequest, "size_of_restBlobRequest")
	register(&c.sizeOfFinalizeRequest, "size_of_finalizeRequest")
	register(&c.sizeOfCreateRequest, "size_of_createRequest")
	register(&c.sizeOfInfoRequest, "size_of_infoRequest")
	register(&c.sizeOfReadResponse, "size_of_readResponse")
	register(&c.sizeOfDeleteRequest, "size_of_deleteRequest")

	register(&c.restImmediate, "rest_immediate")
	register(&c.restImmediateBlobDesc, "rest_immediate_blobdesc")
	register(&c.createNotBlobentry, "create_not_blobentry")
	register(&c.writeFragment, "write_fragment")
	register(&c.readFragment, "read_fragment")
	register(&c.finalizeBlob, "finalize_blob")
	register(&c.getInfo, "get_info")
	register(&c.deleteBlob, "delete_blob")

	if status := c.chifInitialize(); status != chifStatusSuccess {
		return nil, fmt.Errorf("%w: ChifInitialize returned %d", hii.ErrTransportInit, status)
	}

	var handle uintptr
	if status := c.chifCreate(&handle); status != chifStatusSuccess {
		return nil, fmt.Errorf("%w: ChifCreate returned %d", hii.ErrTransportInit, status)
	}
	c.handle = handle

	return c, nil
}

// Close tears down the channel handle. Any non-zero status is logged, not
// returned, mirroring the library's own fire-and-forget teardown contract.
func (c *Chif) Close() {
	if status := c.chifClose(c.handle); status != chifStatusSuccess {
		c.log.Error(&hii.TransportError{Code: status}, "ChifClose returned non-zero status")
	}
}

// Ping verifies the channel is alive.
func (c *Chif) Ping() error {
	if status := c.chifPing(c.handle); status != chifStatusSuccess {
		return &hii.TransportError{Code: status}
	}
	return nil
}

// SetRecvTimeout sets the channel's packet exchange receive timeout.
func (c *Chif) SetRecvTimeout(ms uint32) error {
	if status := c.chifSetRecvTimeout(c.handle, ms); status != chifStatusSuccess {
		return &hii.TransportError{Code: status}
	}
	return nil
}

// MaxBufferSize returns the channel's maximum packet-exchange buffer size;
// PacketExchange always sizes its receive buffer to this.
func (c *Chif) MaxBufferSize() uint32 { return c.getMaxBufferSize() }

// MaxReadSize and MaxWriteSize are the channel's per-fragment read/write
// ceilings; Blobstore2 subtracts the matching request-header size from each
// to get the usable payload chunk.
func (c *Chif) MaxReadSize() uint32  { return c.maxReadSize() }
func (c *Chif) MaxWriteSize() uint32 { return c.maxWriteSize() }

// ReadRequestSize, WriteRequestSize, and the other SizeOf* methods report
// the fixed header size of the correspondingly named request template, as
// returned by the library's size_of_* exports.
func (c *Chif) ReadRequestSize() uint32       { return c.sizeOfReadRequest() }
func (c *Chif) WriteRequestSize() uint32      { return c.sizeOfWriteRequest() }
func (c *Chif) ResponseHeaderBlobSize() uint32 { return c.sizeOfResponseHdrBlob() }
func (c *Chif) RestResponseFixedSize() uint32 { return c.sizeOfRestResponseFixed() }
func (c *Chif) RestImmediateRequestSize() uint32 { return c.sizeOfRestImmediateReq() }
func (c *Chif) RestBlobRequestSize() uint32   { return c.sizeOfRestBlobRequest() }
func (c *Chif) FinalizeRequestSize() uint32   { return c.sizeOfFinalizeRequest() }
func (c *Chif) CreateRequestSize() uint32     { return c.sizeOfCreateRequest() }
func (c *Chif) InfoRequestSize() uint32       { return c.sizeOfInfoRequest() }
func (c *Chif) ReadResponseSize() uint32      { return c.sizeOfReadResponse() }
func (c *Chif) DeleteRequestSize() uint32     { return c.sizeOfDeleteRequest() }

// PacketExchange sends req through the foreign library's packet exchange and
// returns the raw response, sized to MaxBufferSize. The caller owns the
// returned slice; no library pointer escapes this call.
func (c *Chif) PacketExchange(req []byte) ([]byte, error) {
	recv := make([]byte, c.getMaxBufferSize())

	var sendPtr uintptr
	if len(req) > 0 {
		sendPtr = uintptr(unsafe.Pointer(&req[0]))
	}

	status := c.chifPacketExchange(c.handle, sendPtr, uintptr(unsafe.Pointer(&recv[0])), uint32(len(recv)))
	if status != chifStatusSuccess {
		return nil, &hii.TransportError{Code: status}
	}
	return recv, nil
}

// copyTemplate dereferences a library-owned pointer returned by a template
// factory and copies size bytes out of it, so nothing in this package holds
// a reference into foreign storage past this call.
func copyTemplate(ptr uintptr, size uint32) []byte {
	if ptr == 0 || size == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	out := make([]byte, size)
	copy(out, src)
	return out
}

// RestImmediate builds the immediate-REST request template embedding the
// raw request's length and the response key to reply under.
func (c *Chif) RestImmediate(dataLen uint32, responseKey, namespace string) []byte {
	return copyTemplate(c.restImmediate(dataLen, responseKey, namespace), c.sizeOfRestImmediateReq())
}

// RestImmediateBlobDesc builds the blob-descriptor REST request template
// that tells the BMC to execute request_key's blob and reply under
// response_key.
func (c *Chif) RestImmediateBlobDesc(requestKey, responseKey, namespace string) []byte {
	return copyTemplate(c.restImmediateBlobDesc(requestKey, responseKey, namespace), c.sizeOfRestBlobRequest())
}

// CreateNotBlobentry builds the template that creates a new blob-store entry
// for requestKey.
func (c *Chif) CreateNotBlobentry(requestKey, namespace string) []byte {
	return copyTemplate(c.createNotBlobentry(requestKey, namespace), c.sizeOfCreateRequest())
}

// WriteFragment builds the template for writing count bytes of requestKey's
// blob starting at blockOffset; the caller appends count payload bytes
// after this header.
func (c *Chif) WriteFragment(blockOffset, count uint32, requestKey, namespace string) []byte {
	return copyTemplate(c.writeFragment(blockOffset, count, requestKey, namespace), c.sizeOfWriteRequest())
}

// ReadFragment builds the template for reading count bytes of responseKey's
// blob starting at blockOffset.
func (c *Chif) ReadFragment(blockOffset, count uint32, responseKey, namespace string) []byte {
	return copyTemplate(c.readFragment(blockOffset, count, responseKey, namespace), c.sizeOfReadRequest())
}

// FinalizeBlob builds the template finalizing requestKey's written blob.
func (c *Chif) FinalizeBlob(requestKey, namespace string) []byte {
	return copyTemplate(c.finalizeBlob(requestKey, namespace), c.sizeOfFinalizeRequest())
}

// GetInfo builds the template querying responseKey's blob size.
func (c *Chif) GetInfo(responseKey, namespace string) []byte {
	return copyTemplate(c.getInfo(responseKey, namespace), c.sizeOfInfoRequest())
}

// DeleteBlob builds the template deleting key's blob-store entry.
func (c *Chif) DeleteBlob(key, namespace string) []byte {
	return copyTemplate(c.deleteBlob(key, namespace), c.sizeOfDeleteRequest())
}
