package netutil

import (
	"bytes"

	"github.com/vmihailenco/msgpack"
)

// MessagePackMsgPacker packs and unpacks message in MessagePack format
type MessagePackMsgPacker struct{}

// PackMsg packs message to the end of buf in MessagePack format
func (mp MessagePackMsgPacker) PackMsg(msg interface{}, buf []byte) ([]byte, error) {
	buffer := bytes.NewBuffer(buf)

	encoder := msgpack.NewEncoder(buffer)
	if err := encoder.Encode(msg); err != nil {
		return buf, err
	}
	return buffer.Bytes(), nil
}

// UnpackMsg unpacks bytes in MessagePack format to message
func (mp MessagePackMsgPacker) UnpackMsg(data []byte, msg interface{}) error {
	return msgpack.Unmarshal(data, msg)
}
