package transport

import (
	"encoding/binary"
	"testing"

	"github.com/metal3-community/uefi-settings/hii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory channel double driving Blobstore2 without
// ilorest_chif.so present, mirroring varstore.MemVarStore's role as a
// filesystem-free test double. respond computes the response body for the
// call-th packet exchange; PacketExchange fills in the echoed sequence
// number itself so tests only need to describe payload and status bytes.
type fakeChannel struct {
	maxWrite, maxRead                   uint32
	writeReqSize, readReqSize           uint32
	restImmediateReqSize, restRespFixed uint32
	responseHeaderBlobSize              uint32
	seq                                 uint16
	exchanges                           [][]byte
	respond                             func(call int, req []byte) []byte
}

func (f *fakeChannel) SetRecvTimeout(ms uint32) error   { return nil }
func (f *fakeChannel) MaxWriteSize() uint32             { return f.maxWrite }
func (f *fakeChannel) MaxReadSize() uint32              { return f.maxRead }
func (f *fakeChannel) WriteRequestSize() uint32         { return f.writeReqSize }
func (f *fakeChannel) ReadRequestSize() uint32          { return f.readReqSize }
func (f *fakeChannel) RestImmediateRequestSize() uint32 { return f.restImmediateReqSize }
func (f *fakeChannel) RestResponseFixedSize() uint32    { return f.restRespFixed }
func (f *fakeChannel) ResponseHeaderBlobSize() uint32   { return f.responseHeaderBlobSize }

func (f *fakeChannel) nextTemplate() []byte {
	f.seq++
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint16(hdr[2:4], f.seq)
	return hdr
}

func (f *fakeChannel) RestImmediate(dataLen uint32, responseKey, namespace string) []byte {
	return f.nextTemplate()
}
func (f *fakeChannel) RestImmediateBlobDesc(requestKey, responseKey, namespace string) []byte {
	return f.nextTemplate()
}
func (f *fakeChannel) CreateNotBlobentry(requestKey, namespace string) []byte {
	return f.nextTemplate()
}
func (f *fakeChannel) WriteFragment(blockOffset, count uint32, requestKey, namespace string) []byte {
	return f.nextTemplate()
}
func (f *fakeChannel) ReadFragment(blockOffset, count uint32, responseKey, namespace string) []byte {
	return f.nextTemplate()
}
func (f *fakeChannel) FinalizeBlob(requestKey, namespace string) []byte { return f.nextTemplate() }
func (f *fakeChannel) GetInfo(responseKey, namespace string) []byte    { return f.nextTemplate() }
func (f *fakeChannel) DeleteBlob(key, namespace string) []byte        { return f.nextTemplate() }

func (f *fakeChannel) PacketExchange(req []byte) ([]byte, error) {
	call := len(f.exchanges)
	f.exchanges = append(f.exchanges, req)
	resp := f.respond(call, req)
	copy(resp[2:4], req[2:4])
	return resp, nil
}

// ackResponse builds a minimal successful, receive_mode 0 / data_len 0
// response, used for calls whose payload nobody inspects (create, write
// fragment, finalize, delete).
func ackResponse() []byte {
	resp := make([]byte, 20)
	binary.LittleEndian.PutUint32(resp[8:12], statusSuccess)
	return resp
}

func TestMakeRequest_ImmediateReceiveModeZero(t *testing.T) {
	f := &fakeChannel{
		maxWrite:             4064,
		restImmediateReqSize: 32, // threshold = 4096
		restRespFixed:        32,
	}
	f.respond = func(call int, req []byte) []byte {
		resp := make([]byte, 32+120)
		binary.LittleEndian.PutUint32(resp[8:12], statusSuccess)
		binary.LittleEndian.PutUint32(resp[12:16], 0) // receive_mode
		binary.LittleEndian.PutUint32(resp[16:20], 120)
		for i := range resp[32:] {
			resp[32+i] = byte(i)
		}
		return resp
	}

	bs := &Blobstore2{chif: f}

	body := make([]byte, 32)
	got, err := bs.MakeRequest(body)
	require.NoError(t, err)
	require.Len(t, got, 120)
	assert.Equal(t, byte(0), got[0])
	assert.Equal(t, byte(119), got[119])
	assert.Len(t, f.exchanges, 1)
}

func TestMakeRequest_BadReceiveMode(t *testing.T) {
	f := &fakeChannel{
		maxWrite:             4064,
		restImmediateReqSize: 32,
		restRespFixed:        32,
	}
	f.respond = func(call int, req []byte) []byte {
		resp := make([]byte, 20)
		binary.LittleEndian.PutUint32(resp[8:12], statusSuccess)
		binary.LittleEndian.PutUint32(resp[12:16], 7) // unrecognized receive_mode
		return resp
	}

	bs := &Blobstore2{chif: f}

	_, err := bs.MakeRequest(make([]byte, 8))
	assert.ErrorIs(t, err, hii.ErrBadReceiveMode)
}

func TestMakeRequest_Fragmented(t *testing.T) {
	f := &fakeChannel{
		maxWrite:               8,
		writeReqSize:           2, // write chunk = 6
		maxRead:                10,
		readReqSize:            2, // read chunk = 8
		responseHeaderBlobSize: 4,
		restImmediateReqSize:   0, // threshold = maxWrite = 8
		restRespFixed:          20,
	}
	body := make([]byte, 20)
	for i := range body {
		body[i] = byte(100 + i)
	}

	var totalRead []byte
	f.respond = func(call int, req []byte) []byte {
		switch call {
		case 0, 1, 2, 3, 4: // create + 4 write fragments
			return ackResponse()
		case 5: // finalize
			return ackResponse()
		case 6: // rest_immediate_blobdesc -> fragmented response
			resp := make([]byte, 20)
			binary.LittleEndian.PutUint32(resp[8:12], statusSuccess)
			binary.LittleEndian.PutUint32(resp[12:16], 1) // receive_mode fragmented
			return resp
		case 7: // get_info
			resp := make([]byte, 16)
			binary.LittleEndian.PutUint32(resp[8:12], statusSuccess)
			binary.LittleEndian.PutUint32(resp[12:16], uint32(len(body)))
			return resp
		case 8, 9, 10: // read fragments
			idx := call - 8
			offsets := []int{0, 8, 16}
			want := []int{8, 8, 4}
			off, n := offsets[idx], want[idx]
			chunk := body[off : off+n]
			totalRead = append(totalRead, chunk...)
			resp := make([]byte, f.responseHeaderBlobSize+4+uint32(n))
			copy(resp[f.responseHeaderBlobSize+4:], chunk)
			return resp
		default: // delete_blob
			return ackResponse()
		}
	}

	bs := &Blobstore2{chif: f}

	got, err := bs.MakeRequest(body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Equal(t, body, totalRead)
	// create(1) + write(4) + finalize(1) + blobdesc(1) + getinfo(1) + read(3) + delete(1)
	assert.Len(t, f.exchanges, 12)
}

// mismatchChannel never echoes the request's sequence number back, to
// exercise Blobstore2's sequence-coherence check.
type mismatchChannel struct {
	*fakeChannel
}

func (m *mismatchChannel) PacketExchange(req []byte) ([]byte, error) {
	resp := make([]byte, 20)
	binary.LittleEndian.PutUint16(resp[2:4], 0x4242)
	binary.LittleEndian.PutUint32(resp[8:12], statusSuccess)
	return resp, nil
}

func TestExchange_SequenceMismatch(t *testing.T) {
	f := &mismatchChannel{fakeChannel: &fakeChannel{restImmediateReqSize: 1 << 30}}
	bs := &Blobstore2{chif: f}

	_, err := bs.MakeRequest(make([]byte, 4))
	assert.ErrorIs(t, err, hii.ErrSequenceMismatch)
}

func TestExchange_NotModifiedAccepted(t *testing.T) {
	f := &fakeChannel{restImmediateReqSize: 1 << 30}
	f.respond = func(call int, req []byte) []byte {
		resp := make([]byte, 20)
		binary.LittleEndian.PutUint32(resp[8:12], statusNotModified)
		binary.LittleEndian.PutUint32(resp[16:20], 0)
		return resp
	}
	bs := &Blobstore2{chif: f}

	_, err := bs.MakeRequest(make([]byte, 4))
	assert.NoError(t, err)
}

func TestExchange_TransportError(t *testing.T) {
	f := &fakeChannel{restImmediateReqSize: 1 << 30}
	f.respond = func(call int, req []byte) []byte {
		resp := make([]byte, 20)
		binary.LittleEndian.PutUint32(resp[8:12], 5) // arbitrary failure code
		return resp
	}
	bs := &Blobstore2{chif: f}

	_, err := bs.MakeRequest(make([]byte, 4))
	var terr *hii.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, uint32(5), terr.Code)
}
