// Package wire implements the BitTorrent peer wire protocol: the handshake,
// the length-prefixed message stream (BEP-3), the extension protocol
// envelope (BEP-10) and the reserved-byte feature bits (BEP-5, BEP-10).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID identifies the kind of a length-prefixed wire message. Using a
// sum type here (instead of a bool-flagged struct) keeps ReadMessage's
// decode switch exhaustive and lets callers switch on Message.ID instead
// of checking a handful of "is this set" fields.
type MessageID uint8

const (
	IDChoke         MessageID = 0
	IDUnchoke       MessageID = 1
	IDInterested    MessageID = 2
	IDNotInterested MessageID = 3
	IDHave          MessageID = 4
	IDBitfield      MessageID = 5
	IDRequest       MessageID = 6
	IDPiece         MessageID = 7
	IDCancel        MessageID = 8
	IDPort          MessageID = 9
	IDExtended      MessageID = 20
)

func (id MessageID) String() string {
	switch id {
	case IDChoke:
		return "choke"
	case IDUnchoke:
		return "unchoke"
	case IDInterested:
		return "interested"
	case IDNotInterested:
		return "not_interested"
	case IDHave:
		return "have"
	case IDBitfield:
		return "bitfield"
	case IDRequest:
		return "request"
	case IDPiece:
		return "piece"
	case IDCancel:
		return "cancel"
	case IDPort:
		return "port"
	case IDExtended:
		return "extended"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Message is every message that can appear on the wire after the handshake,
// including the zero-length keep-alive. Exactly one of the typed fields is
// meaningful, selected by ID; Have/Request/Cancel share the PieceIndex/Begin/
// Length fields since they carry the same shape.
type Message struct {
	ID MessageID

	// KeepAlive is true for the zero-length message, which carries no ID
	// byte at all.
	KeepAlive bool

	PieceIndex uint32
	Begin      uint32
	Length     uint32
	Block      []byte // Piece payload.
	Bitfield   []byte // Raw wire-format bitfield, MSB-first within each byte.
	Port       uint16

	ExtID   uint8 // Extended message sub-id: 0 is the handshake, >0 a registered extension.
	ExtData []byte
}

// KeepAliveMessage builds the zero-length keep-alive message.
func KeepAliveMessage() Message {
	return Message{KeepAlive: true}
}

func ChokeMessage() Message         { return Message{ID: IDChoke} }
func UnchokeMessage() Message       { return Message{ID: IDUnchoke} }
func InterestedMessage() Message    { return Message{ID: IDInterested} }
func NotInterestedMessage() Message { return Message{ID: IDNotInterested} }

func HaveMessage(pieceIndex uint32) Message {
	return Message{ID: IDHave, PieceIndex: pieceIndex}
}

func BitfieldMessage(bitfield []byte) Message {
	return Message{ID: IDBitfield, Bitfield: bitfield}
}

func RequestMessage(pieceIndex, begin, length uint32) Message {
	return Message{ID: IDRequest, PieceIndex: pieceIndex, Begin: begin, Length: length}
}

func PieceMessage(pieceIndex, begin uint32, block []byte) Message {
	return Message{ID: IDPiece, PieceIndex: pieceIndex, Begin: begin, Block: block}
}

func CancelMessage(pieceIndex, begin, length uint32) Message {
	return Message{ID: IDCancel, PieceIndex: pieceIndex, Begin: begin, Length: length}
}

func PortMessage(port uint16) Message {
	return Message{ID: IDPort, Port: port}
}

func ExtendedMessage(extID uint8, data []byte) Message {
	return Message{ID: IDExtended, ExtID: extID, ExtData: data}
}

// maxMessageLength bounds the length prefix accepted from a peer. No BEP-3
// message legitimately exceeds a few hundred KB once block size is capped
// (C7 caps requested block length); anything larger indicates either a
// misbehaving peer or a desync in the stream and is rejected immediately
// rather than attempting to buffer it.
const maxMessageLength = 1 << 20

// WriteMessage serializes and writes msg to w in a single call, matching the
// length-prefixed framing read by ReadMessage.
func WriteMessage(w io.Writer, msg Message) error {
	if msg.KeepAlive {
		return writeUint32(w, 0)
	}
	switch msg.ID {
	case IDChoke, IDUnchoke, IDInterested, IDNotInterested:
		if err := writeUint32(w, 1); err != nil {
			return err
		}
		return writeByte(w, byte(msg.ID))
	case IDHave:
		if err := writeUint32(w, 5); err != nil {
			return err
		}
		if err := writeByte(w, byte(msg.ID)); err != nil {
			return err
		}
		return writeUint32(w, msg.PieceIndex)
	case IDBitfield:
		if err := writeUint32(w, uint32(1+len(msg.Bitfield))); err != nil {
			return err
		}
		if err := writeByte(w, byte(msg.ID)); err != nil {
			return err
		}
		_, err := w.Write(msg.Bitfield)
		return err
	case IDRequest, IDCancel:
		if err := writeUint32(w, 13); err != nil {
			return err
		}
		if err := writeByte(w, byte(msg.ID)); err != nil {
			return err
		}
		if err := writeUint32(w, msg.PieceIndex); err != nil {
			return err
		}
		if err := writeUint32(w, msg.Begin); err != nil {
			return err
		}
		return writeUint32(w, msg.Length)
	case IDPiece:
		if err := writeUint32(w, uint32(9+len(msg.Block))); err != nil {
			return err
		}
		if err := writeByte(w, byte(msg.ID)); err != nil {
			return err
		}
		if err := writeUint32(w, msg.PieceIndex); err != nil {
			return err
		}
		if err := writeUint32(w, msg.Begin); err != nil {
			return err
		}
		_, err := w.Write(msg.Block)
		return err
	case IDPort:
		if err := writeUint32(w, 3); err != nil {
			return err
		}
		if err := writeByte(w, byte(msg.ID)); err != nil {
			return err
		}
		return writeUint16(w, msg.Port)
	case IDExtended:
		if err := writeUint32(w, uint32(2+len(msg.ExtData))); err != nil {
			return err
		}
		if err := writeByte(w, byte(msg.ID)); err != nil {
			return err
		}
		if err := writeByte(w, msg.ExtID); err != nil {
			return err
		}
		_, err := w.Write(msg.ExtData)
		return err
	default:
		return fmt.Errorf("wire: cannot write message with unknown id %d", msg.ID)
	}
}

// ReadMessage reads and decodes a single length-prefixed message from r,
// blocking until the full frame has arrived (or r errors / r's deadline
// fires, if r is a net.Conn with one set).
func ReadMessage(r io.Reader) (Message, error) {
	length, err := readUint32(r)
	if err != nil {
		return Message{}, fmt.Errorf("read length prefix: %w", err)
	}
	if length == 0 {
		return KeepAliveMessage(), nil
	}
	if length > maxMessageLength {
		return Message{}, fmt.Errorf("message length %d exceeds maximum %d", length, maxMessageLength)
	}

	idByte, err := readByte(r)
	if err != nil {
		return Message{}, fmt.Errorf("read message id: %w", err)
	}
	id := MessageID(idByte)

	payload := make([]byte, length-1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("read payload for %s: %w", id, err)
	}

	switch id {
	case IDChoke, IDUnchoke, IDInterested, IDNotInterested:
		if length != 1 {
			return Message{}, fmt.Errorf("%s: expected length 1, got %d", id, length)
		}
		return Message{ID: id}, nil
	case IDHave:
		if length != 5 {
			return Message{}, fmt.Errorf("have: expected length 5, got %d", length)
		}
		return HaveMessage(binary.BigEndian.Uint32(payload)), nil
	case IDBitfield:
		return BitfieldMessage(payload), nil
	case IDRequest:
		if length != 13 {
			return Message{}, fmt.Errorf("request: expected length 13, got %d", length)
		}
		return RequestMessage(
			binary.BigEndian.Uint32(payload[0:4]),
			binary.BigEndian.Uint32(payload[4:8]),
			binary.BigEndian.Uint32(payload[8:12]),
		), nil
	case IDPiece:
		if length <= 9 {
			return Message{}, fmt.Errorf("piece: expected length > 9, got %d", length)
		}
		return PieceMessage(
			binary.BigEndian.Uint32(payload[0:4]),
			binary.BigEndian.Uint32(payload[4:8]),
			payload[8:],
		), nil
	case IDCancel:
		if length != 13 {
			return Message{}, fmt.Errorf("cancel: expected length 13, got %d", length)
		}
		return CancelMessage(
			binary.BigEndian.Uint32(payload[0:4]),
			binary.BigEndian.Uint32(payload[4:8]),
			binary.BigEndian.Uint32(payload[8:12]),
		), nil
	case IDPort:
		if length != 3 {
			return Message{}, fmt.Errorf("port: expected length 3, got %d", length)
		}
		return PortMessage(binary.BigEndian.Uint16(payload[0:2])), nil
	case IDExtended:
		if length < 2 {
			return Message{}, fmt.Errorf("extended: expected length >= 2, got %d", length)
		}
		return ExtendedMessage(payload[0], payload[1:]), nil
	default:
		return Message{}, fmt.Errorf("unexpected message id %d (length %d)", id, length)
	}
}

func writeUint32(w io.Writer, n uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	_, err := w.Write(b[:])
	return err
}

func writeUint16(w io.Writer, n uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], n)
	_, err := w.Write(b[:])
	return err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
