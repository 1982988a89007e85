package netutil

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/pkg/errors"
)

const (
	_MIN_PAYLOAD_CAP = 128
	_CAP_GROW_SHIFT  = uint(2)

	_SIZE_FIELD_SIZE    = 4
	_PREPAYLOAD_SIZE    = _SIZE_FIELD_SIZE
	_MAX_PAYLOAD_LENGTH = consts.MAX_PAYLOAD_LENGTH
)

var (
	// NETWORK_ENDIAN is the byte order of all packet fields
	NETWORK_ENDIAN = binary.LittleEndian

	errPayloadTooLarge = errors.New("payload too large")
	errPacketTruncated = errors.New("packet truncated")

	predefinePayloadCapacities []uint32

	debugInfo struct {
		NewCount     int64
		AllocCount   int64
		ReleaseCount int64
	}

	packetBufferPools = map[uint32]*sync.Pool{}
	packetPool        = sync.Pool{
		New: func() interface{} {
			p := &Packet{}
			p.bytes = p.initialBytes[:]

			if consts.DEBUG_PACKET_ALLOC {
				atomic.AddInt64(&debugInfo.NewCount, 1)
				gwlog.Infof("DEBUG PACKETS: ALLOC=%d, RELEASE=%d, NEW=%d",
					atomic.LoadInt64(&debugInfo.AllocCount),
					atomic.LoadInt64(&debugInfo.ReleaseCount),
					atomic.LoadInt64(&debugInfo.NewCount))
			}
			return p
		},
	}
)

func init() {
	payloadCap := uint32(_MIN_PAYLOAD_CAP) << _CAP_GROW_SHIFT
	for payloadCap < _MAX_PAYLOAD_LENGTH {
		predefinePayloadCapacities = append(predefinePayloadCapacities, payloadCap)
		payloadCap <<= _CAP_GROW_SHIFT
	}
	predefinePayloadCapacities = append(predefinePayloadCapacities, _MAX_PAYLOAD_LENGTH)

	for _, payloadCap := range predefinePayloadCapacities {
		payloadCap := payloadCap
		packetBufferPools[payloadCap] = &sync.Pool{
			New: func() interface{} {
				return make([]byte, _PREPAYLOAD_SIZE+payloadCap)
			},
		}
	}
}

func getPayloadCapOfPayloadLen(payloadLen uint32) uint32 {
	for _, payloadCap := range predefinePayloadCapacities {
		if payloadCap >= payloadLen {
			return payloadCap
		}
	}
	return _MAX_PAYLOAD_LENGTH
}

// Packet is a length-prefixed, reference counted buffer for sending and receiving data
type Packet struct {
	readCursor   uint32
	refcount     int64
	bytes        []byte
	initialBytes [_PREPAYLOAD_SIZE + _MIN_PAYLOAD_CAP]byte
}

func allocPacket() *Packet {
	pkt := packetPool.Get().(*Packet)
	pkt.refcount = 1

	if consts.DEBUG_PACKET_ALLOC {
		atomic.AddInt64(&debugInfo.AllocCount, 1)
	}

	if pkt.GetPayloadLen() != 0 {
		gwlog.Panicf("allocPacket: payload should be 0, but is %d", pkt.GetPayloadLen())
	}
	return pkt
}

// NewPacket allocates a new packet
func NewPacket() *Packet {
	return allocPacket()
}

// GetPayloadLen returns the payload length
func (p *Packet) GetPayloadLen() uint32 {
	return NETWORK_ENDIAN.Uint32(p.bytes[0:_SIZE_FIELD_SIZE])
}

// SetPayloadLen sets the payload length
func (p *Packet) SetPayloadLen(plen uint32) {
	NETWORK_ENDIAN.PutUint32(p.bytes[0:_SIZE_FIELD_SIZE], plen)
}

func (p *Packet) growPayloadLen(n uint32) {
	p.SetPayloadLen(p.GetPayloadLen() + n)
}

// AssureCapacity makes sure need bytes can be appended without reallocation
func (p *Packet) AssureCapacity(need uint32) {
	requireCap := p.GetPayloadLen() + need
	oldCap := p.PayloadCap()

	if requireCap <= oldCap { // most case
		return
	}
	if requireCap > _MAX_PAYLOAD_LENGTH {
		gwlog.Panic(errors.Wrapf(errPayloadTooLarge, "require %d", requireCap))
	}

	// try to find the proper capacity for the need bytes
	resizeToCap := getPayloadCapOfPayloadLen(requireCap)

	buffer := packetBufferPools[resizeToCap].Get().([]byte)
	copy(buffer, p.data())
	oldBytes := p.bytes
	p.bytes = buffer

	if oldCap > _MIN_PAYLOAD_CAP {
		// release old bytes
		packetBufferPools[oldCap].Put(oldBytes)
	}
}

// AddRefCount adds reference count of packet
func (p *Packet) AddRefCount(add int64) {
	atomic.AddInt64(&p.refcount, add)
}

// Payload returns the total payload of packet
func (p *Packet) Payload() []byte {
	return p.bytes[_PREPAYLOAD_SIZE : _PREPAYLOAD_SIZE+p.GetPayloadLen()]
}

// UnreadPayload returns the unread payload
func (p *Packet) UnreadPayload() []byte {
	pos := p.readCursor + _PREPAYLOAD_SIZE
	payloadEnd := _PREPAYLOAD_SIZE + p.GetPayloadLen()
	return p.bytes[pos:payloadEnd]
}

// HasUnreadPayload returns if there is payload left to read
func (p *Packet) HasUnreadPayload() bool {
	return p.readCursor < p.GetPayloadLen()
}

func (p *Packet) data() []byte {
	return p.bytes[0 : _PREPAYLOAD_SIZE+p.GetPayloadLen()]
}

// PayloadCap returns the current payload capacity
func (p *Packet) PayloadCap() uint32 {
	return uint32(len(p.bytes) - _PREPAYLOAD_SIZE)
}

// Release releases the packet to packet pool
func (p *Packet) Release() {
	refcount := atomic.AddInt64(&p.refcount, -1)

	if refcount == 0 {
		payloadCap := p.PayloadCap()
		if payloadCap > _MIN_PAYLOAD_CAP {
			buffer := p.bytes
			p.bytes = p.initialBytes[:]
			packetBufferPools[payloadCap].Put(buffer) // reclaim the buffer
		}

		p.readCursor = 0
		p.SetPayloadLen(0)
		packetPool.Put(p)

		if consts.DEBUG_PACKET_ALLOC {
			atomic.AddInt64(&debugInfo.ReleaseCount, 1)
		}
	} else if refcount < 0 {
		gwlog.Panicf("releasing packet with refcount=%d", p.refcount)
	}
}

// Clone returns a new packet holding a copy of the payload
func (p *Packet) Clone() *Packet {
	cp := NewPacket()
	cp.AppendBytes(p.Payload())
	return cp
}

// ClearPayload clears packet payload
func (p *Packet) ClearPayload() {
	p.readCursor = 0
	p.SetPayloadLen(0)
}

// Rewind moves the read cursor back to the start of payload
func (p *Packet) Rewind() {
	p.readCursor = 0
}

func (p *Packet) appendSpace(n uint32) []byte {
	p.AssureCapacity(n)
	payloadEnd := _PREPAYLOAD_SIZE + p.GetPayloadLen()
	p.growPayloadLen(n)
	return p.bytes[payloadEnd : payloadEnd+n]
}

func (p *Packet) readSpace(n uint32) []byte {
	if p.readCursor+n > p.GetPayloadLen() {
		gwlog.Panic(errors.Wrapf(errPacketTruncated, "reading %d+%d of %d", p.readCursor, n, p.GetPayloadLen()))
	}
	pos := p.readCursor + _PREPAYLOAD_SIZE
	p.readCursor += n
	return p.bytes[pos : pos+n]
}

// AppendByte appends one byte to the end of payload
func (p *Packet) AppendByte(b byte) {
	p.appendSpace(1)[0] = b
}

// ReadOneByte reads one byte from the beginning
func (p *Packet) ReadOneByte() byte {
	return p.readSpace(1)[0]
}

// AppendBool appends one byte 1/0 to the end of payload
func (p *Packet) AppendBool(b bool) {
	if b {
		p.AppendByte(1)
	} else {
		p.AppendByte(0)
	}
}

// ReadBool reads one byte 1/0 from the beginning of unread payload
func (p *Packet) ReadBool() bool {
	return p.ReadOneByte() != 0
}

// AppendUint16 appends one uint16 to the end of payload
func (p *Packet) AppendUint16(v uint16) {
	NETWORK_ENDIAN.PutUint16(p.appendSpace(2), v)
}

// AppendUint32 appends one uint32 to the end of payload
func (p *Packet) AppendUint32(v uint32) {
	NETWORK_ENDIAN.PutUint32(p.appendSpace(4), v)
}

// AppendUint64 appends one uint64 to the end of payload
func (p *Packet) AppendUint64(v uint64) {
	NETWORK_ENDIAN.PutUint64(p.appendSpace(8), v)
}

// AppendInt32 appends one int32 to the end of payload
func (p *Packet) AppendInt32(v int32) {
	p.AppendUint32(uint32(v))
}

// AppendFloat32 appends one float32 to the end of payload
func (p *Packet) AppendFloat32(f float32) {
	p.AppendUint32(math.Float32bits(f))
}

// ReadUint16 reads one uint16 from the beginning of unread payload
func (p *Packet) ReadUint16() uint16 {
	return NETWORK_ENDIAN.Uint16(p.readSpace(2))
}

// ReadUint32 reads one uint32 from the beginning of unread payload
func (p *Packet) ReadUint32() uint32 {
	return NETWORK_ENDIAN.Uint32(p.readSpace(4))
}

// ReadUint64 reads one uint64 from the beginning of unread payload
func (p *Packet) ReadUint64() uint64 {
	return NETWORK_ENDIAN.Uint64(p.readSpace(8))
}

// ReadInt32 reads one int32 from the beginning of unread payload
func (p *Packet) ReadInt32() int32 {
	return int32(p.ReadUint32())
}

// ReadFloat32 reads one float32 from the beginning of unread payload
func (p *Packet) ReadFloat32() float32 {
	return math.Float32frombits(p.ReadUint32())
}

// AppendBytes appends slice of bytes to the end of payload
func (p *Packet) AppendBytes(v []byte) {
	copy(p.appendSpace(uint32(len(v))), v)
}

// ReadBytes reads bytes from the beginning of unread payload, bytes are not copied
func (p *Packet) ReadBytes(size uint32) []byte {
	return p.readSpace(size)
}

// AppendVarBytes appends varsize bytes to the end of payload
func (p *Packet) AppendVarBytes(v []byte) {
	p.AppendUint32(uint32(len(v)))
	p.AppendBytes(v)
}

// ReadVarBytes reads a varsize slice of bytes from the beginning of unread payload
func (p *Packet) ReadVarBytes() []byte {
	blen := p.ReadUint32()
	return p.ReadBytes(blen)
}

// AppendVarStr appends a varsize string to the end of payload
func (p *Packet) AppendVarStr(s string) {
	p.AppendVarBytes([]byte(s))
}

// ReadVarStr reads a varsize string from the beginning of unread payload
func (p *Packet) ReadVarStr() string {
	return string(p.ReadVarBytes())
}

// AppendEntityID appends one EntityID to the end of payload
func (p *Packet) AppendEntityID(id common.EntityID) {
	p.AppendUint32(id.Serial())
}

// ReadEntityID reads one EntityID from the beginning of unread payload
func (p *Packet) ReadEntityID() common.EntityID {
	return common.EntityIDFromSerial(p.ReadUint32())
}

// AppendNodeAddress appends one NodeAddress to the end of payload
func (p *Packet) AppendNodeAddress(addr common.NodeAddress) {
	b := p.appendSpace(3)
	b[0] = addr.Group
	b[1] = addr.Index
	b[2] = byte(addr.Role)
}

// ReadNodeAddress reads one NodeAddress from the beginning of unread payload
func (p *Packet) ReadNodeAddress() common.NodeAddress {
	b := p.readSpace(3)
	return common.NodeAddress{Group: b[0], Index: b[1], Role: common.NodeRole(b[2])}
}

// AppendData appends one data of any type to the end of payload
func (p *Packet) AppendData(msg interface{}) {
	dataBytes, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		gwlog.Panic(err)
	}

	p.AppendVarBytes(dataBytes)
}

// ReadData reads one data of any type from the beginning of unread payload
func (p *Packet) ReadData(msg interface{}) {
	b := p.ReadVarBytes()
	err := MSG_PACKER.UnpackMsg(b, msg)
	if err != nil {
		gwlog.Panic(err)
	}
}
