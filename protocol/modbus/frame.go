// Package modbus implements the Modbus wire codec (MBAP/TCP and RTU),
// transaction correlation, and the typed client adapter built on top of
// them. The codec is stateless: encode/decode never touch a connection
// or a clock.
package modbus

import (
	"encoding/binary"

	"github.com/jangala-dev/comsrv/errs"
)

// Function codes supported by the core (§6).
const (
	FuncReadCoils             byte = 0x01
	FuncReadDiscreteInputs    byte = 0x02
	FuncReadHoldingRegisters  byte = 0x03
	FuncReadInputRegisters    byte = 0x04
	FuncWriteSingleCoil       byte = 0x05
	FuncWriteSingleRegister   byte = 0x06
	FuncWriteMultipleCoils    byte = 0x0F
	FuncWriteMultipleRegs     byte = 0x10
)

// MaxPDULen is the Modbus PDU payload limit (§3).
const MaxPDULen = 253

// mbapHeaderLen is the fixed 7-byte MBAP prefix.
const mbapHeaderLen = 7

// rtuOverheadLen is unit id (1) + CRC16 (2).
const rtuOverheadLen = 3

// PDU is an opaque byte sequence starting with a function code.
type PDU []byte

// NewPDU validates and wraps a raw byte slice as a PDU.
func NewPDU(b []byte) (PDU, error) {
	if len(b) == 0 {
		return nil, errs.New(errs.Protocol, "NewPDU", "empty PDU")
	}
	if len(b) > MaxPDULen {
		return nil, errs.New(errs.Protocol, "NewPDU", "PDU exceeds 253-byte payload limit")
	}
	return PDU(b), nil
}

// FunctionCode returns the PDU's first byte.
func (p PDU) FunctionCode() byte { return p[0] }

// Len returns the PDU length in bytes.
func (p PDU) Len() int { return len(p) }

// Bytes returns the raw PDU bytes.
func (p PDU) Bytes() []byte { return p }

// IsException reports whether the PDU's function code has the
// exception high bit (0x80) set.
func IsException(p PDU) bool {
	return len(p) > 0 && p[0]&0x80 != 0
}

// ParseException extracts the base function code and exception code
// from an exception PDU. p must satisfy IsException.
func ParseException(p PDU) (baseFunctionCode, exceptionCode byte, err error) {
	if !IsException(p) {
		return 0, 0, errs.New(errs.Protocol, "ParseException", "not an exception PDU")
	}
	if len(p) < 2 {
		return 0, 0, errs.New(errs.Protocol, "ParseException", "truncated exception PDU")
	}
	return p[0] &^ 0x80, p[1], nil
}

// exceptionDescriptions are the standard Modbus exception codes 0x01-0x0B.
var exceptionDescriptions = map[byte]string{
	0x01: "Illegal Function",
	0x02: "Illegal Data Address",
	0x03: "Illegal Data Value",
	0x04: "Server Device Failure",
	0x05: "Acknowledge",
	0x06: "Server Device Busy",
	0x07: "Negative Acknowledge",
	0x08: "Memory Parity Error",
	0x0A: "Gateway Path Unavailable",
	0x0B: "Gateway Target Device Failed To Respond",
}

// DescribeException returns a human-readable description of an
// exception code, or "Unknown Exception" if not one of 0x01-0x0B.
func DescribeException(code byte) string {
	if s, ok := exceptionDescriptions[code]; ok {
		return s
	}
	return "Unknown Exception"
}

// ModbusException is a decoded exception response, surfaced as the
// error of the operation that provoked it.
type ModbusException struct {
	BaseFunctionCode byte
	ExceptionCode    byte
}

func (e *ModbusException) Error() string {
	return "modbus exception " + DescribeException(e.ExceptionCode)
}

func (e *ModbusException) Code() errs.Code { return errs.Protocol }

// EncodeTCP emits an MBAP header followed by the PDU. length = 1 + pdu.Len().
func EncodeTCP(unitID byte, pdu PDU, transactionID uint16) []byte {
	out := make([]byte, mbapHeaderLen+len(pdu))
	binary.BigEndian.PutUint16(out[0:2], transactionID)
	binary.BigEndian.PutUint16(out[2:4], 0) // protocol id, always 0
	binary.BigEndian.PutUint16(out[4:6], uint16(1+len(pdu)))
	out[6] = unitID
	copy(out[7:], pdu)
	return out
}

// DecodeTCP validates and splits an MBAP ADU into unit id and PDU.
func DecodeTCP(b []byte) (unitID byte, transactionID uint16, pdu PDU, err error) {
	if len(b) < mbapHeaderLen {
		return 0, 0, nil, errs.New(errs.Protocol, "DecodeTCP", "FrameTooShort")
	}
	transactionID = binary.BigEndian.Uint16(b[0:2])
	protocolID := binary.BigEndian.Uint16(b[2:4])
	length := binary.BigEndian.Uint16(b[4:6])
	unitID = b[6]
	if protocolID != 0 {
		return 0, 0, nil, errs.New(errs.Protocol, "DecodeTCP", "non-zero protocol id")
	}
	if length < 2 || length > 254 {
		return 0, 0, nil, errs.New(errs.Protocol, "DecodeTCP", "FrameLengthMismatch")
	}
	want := mbapHeaderLen + int(length) - 1
	if len(b) != want {
		return 0, 0, nil, errs.New(errs.Protocol, "DecodeTCP", "FrameLengthMismatch")
	}
	pdu = PDU(b[mbapHeaderLen:])
	return unitID, transactionID, pdu, nil
}

// EncodeRTU appends a little-endian CRC16 to unit id + PDU.
func EncodeRTU(unitID byte, pdu PDU) []byte {
	out := make([]byte, 1+len(pdu)+2)
	out[0] = unitID
	copy(out[1:], pdu)
	crc := CRC16(out[:1+len(pdu)])
	out[len(out)-2] = byte(crc)
	out[len(out)-1] = byte(crc >> 8)
	return out
}

// DecodeRTU validates the trailing CRC16 and splits the frame.
func DecodeRTU(b []byte) (unitID byte, pdu PDU, err error) {
	if len(b) < 4 {
		return 0, nil, errs.New(errs.Protocol, "DecodeRTU", "FrameTooShort")
	}
	body := b[:len(b)-2]
	want := CRC16(body)
	got := uint16(b[len(b)-2]) | uint16(b[len(b)-1])<<8
	if want != got {
		return 0, nil, errs.New(errs.Protocol, "DecodeRTU", "CrcMismatch")
	}
	return body[0], PDU(body[1:]), nil
}

// CRC16 computes the standard Modbus CRC (polynomial 0xA001, seed 0xFFFF).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
