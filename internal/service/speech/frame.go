package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎语音 WebSocket 二进制协议。
// 帧结构：4 字节头 | [sequence] | [event + session id] | payload size | payload

const protocolVersion = 0b0001

type messageType uint8

const (
	fullClientRequest       messageType = 0b0001
	audioOnlyRequest        messageType = 0b0010
	fullServerResponse      messageType = 0b1001
	audioOnlyServerResponse messageType = 0b1011
	errorMessage            messageType = 0b1111
)

type messageFlags uint8

const (
	flagNoSequence       messageFlags = 0b0000
	flagPositiveSequence messageFlags = 0b0001
	flagLastNoSequence   messageFlags = 0b0010
	flagNegativeSequence messageFlags = 0b0011
	flagWithEvent        messageFlags = 0b0100
)

type serialization uint8

const (
	serializationNone serialization = 0b0000
	serializationJSON serialization = 0b0001
)

type compression uint8

const (
	compressionNone compression = 0b0000
	compressionGzip compression = 0b0001
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionFinished    eventType = 152
)

// frame 一条协议消息。
type frame struct {
	Type          messageType
	Flags         messageFlags
	Serialization serialization
	Compression   compression
	Sequence      int32
	Event         eventType
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

func (f *frame) hasSequence() bool {
	switch f.Flags & 0b0011 {
	case flagPositiveSequence, flagNegativeSequence:
		return true
	default:
		return false
	}
}

// isLast 判断是否为最后一包。
func (f *frame) isLast() bool {
	switch f.Flags & 0b0011 {
	case flagLastNoSequence, flagNegativeSequence:
		return true
	default:
		return f.Flags&flagWithEvent != 0 && f.Event == eventSessionFinished
	}
}

func eventCarriesSessionID(e eventType) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return false
	default:
		return true
	}
}

func eventCarriesConnectID(e eventType) bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}

func writeSized(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

func readSized(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// encodeFrame 编码一条消息。
func encodeFrame(f *frame) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 12+len(f.Payload)))
	buf.WriteByte(protocolVersion<<4 | 0b0001)
	buf.WriteByte(uint8(f.Type)<<4 | uint8(f.Flags))
	buf.WriteByte(uint8(f.Serialization)<<4 | uint8(f.Compression))
	buf.WriteByte(0)

	if f.hasSequence() {
		_ = binary.Write(buf, binary.BigEndian, f.Sequence)
	}

	if f.Flags&flagWithEvent != 0 {
		_ = binary.Write(buf, binary.BigEndian, int32(f.Event))
		if eventCarriesSessionID(f.Event) {
			writeSized(buf, []byte(f.SessionID))
		}
		if eventCarriesConnectID(f.Event) {
			writeSized(buf, []byte(f.ConnectID))
		}
	}

	if f.Type == errorMessage {
		_ = binary.Write(buf, binary.BigEndian, f.ErrorCode)
	}
	writeSized(buf, f.Payload)
	return buf.Bytes()
}

// decodeFrame 解码一条消息。
func decodeFrame(data []byte) (*frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if version := data[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	f := &frame{
		Type:          messageType(data[1] >> 4),
		Flags:         messageFlags(data[1] & 0x0F),
		Serialization: serialization(data[2] >> 4),
		Compression:   compression(data[2] & 0x0F),
	}

	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || headerSize > len(data) {
		return nil, fmt.Errorf("invalid header size: %d", headerSize)
	}
	r := bytes.NewReader(data[headerSize:])

	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
	}

	if f.Flags&flagWithEvent != 0 {
		var ev int32
		if err := binary.Read(r, binary.BigEndian, &ev); err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		f.Event = eventType(ev)
		if eventCarriesSessionID(f.Event) {
			sid, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read session id: %w", err)
			}
			f.SessionID = string(sid)
		}
		if eventCarriesConnectID(f.Event) {
			cid, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read connect id: %w", err)
			}
			f.ConnectID = string(cid)
		}
	}

	if f.Type == errorMessage {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
	}

	payload, err := readSized(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	f.Payload = payload
	return f, nil
}

// payload 返回解压后的 payload。
func (f *frame) payload() ([]byte, error) {
	switch f.Compression {
	case compressionNone:
		return f.Payload, nil
	case compressionGzip:
		return gunzip(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.Compression)
	}
}
