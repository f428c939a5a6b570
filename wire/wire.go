// Package wire defines the fixed binary packets exchanged with the
// derotator over TCP and serial links.
//
// All fields are little-endian and unpadded. Packets are encoded field by
// field at fixed offsets so the layout does not depend on the host's struct
// alignment.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// SchemaVersion identifies the packet layout: the variant carrying WLAN
// settings and the Earth rotation rate in the status packet.
const SchemaVersion = 2

const (
	RequestSize = 48
	ReplySize   = 20
	StatusSize  = 90

	// BufSize is the length of the string fields.
	BufSize = 32
)

var ErrShortPacket = errors.New("wire: short packet")

// Reply codes.
const (
	ReplyOK       int16 = 0
	ReplyCadence  int16 = -1
	ReplyLimit    int16 = -2
	ReplyRejected int16 = -3
)

// WLAN security modes.
const (
	SecurityUnsecured int16 = iota
	SecurityWEP
	SecurityWPA
	SecurityWPA2
)

// RequestPacket is sent by a client for every command.
type RequestPacket struct {
	Command Command
	IValue  int16
	FValue  [3]float32
	Buf     [BufSize]byte
}

// BufString returns Buf up to the first NUL.
func (p *RequestPacket) BufString() string {
	return cString(p.Buf[:])
}

// SetBuf stores s in Buf, truncated so that a terminating NUL always fits.
func (p *RequestPacket) SetBuf(s string) {
	setCString(p.Buf[:], s)
}

func (p *RequestPacket) MarshalBinary() ([]byte, error) {
	b := make([]byte, RequestSize)
	le.PutUint16(b[0:], uint16(p.Command))
	le.PutUint16(b[2:], uint16(p.IValue))
	for i, f := range p.FValue {
		putFloat(b[4+4*i:], f)
	}
	copy(b[16:48], p.Buf[:])
	return b, nil
}

func (p *RequestPacket) UnmarshalBinary(b []byte) error {
	if len(b) < RequestSize {
		return fmt.Errorf("request: %w (%d bytes)", ErrShortPacket, len(b))
	}
	p.Command = Command(le.Uint16(b[0:]))
	p.IValue = int16(le.Uint16(b[2:]))
	for i := range p.FValue {
		p.FValue[i] = getFloat(b[4+4*i:])
	}
	copy(p.Buf[:], b[16:48])
	return nil
}

// ReplyPacket answers every command except QueryState.
type ReplyPacket struct {
	Reply  int16
	IValue int16
	FValue [4]float32
}

func (p *ReplyPacket) MarshalBinary() ([]byte, error) {
	b := make([]byte, ReplySize)
	le.PutUint16(b[0:], uint16(p.Reply))
	le.PutUint16(b[2:], uint16(p.IValue))
	for i, f := range p.FValue {
		putFloat(b[4+4*i:], f)
	}
	return b, nil
}

func (p *ReplyPacket) UnmarshalBinary(b []byte) error {
	if len(b) < ReplySize {
		return fmt.Errorf("reply: %w (%d bytes)", ErrShortPacket, len(b))
	}
	p.Reply = int16(le.Uint16(b[0:]))
	p.IValue = int16(le.Uint16(b[2:]))
	for i := range p.FValue {
		p.FValue[i] = getFloat(b[4+4*i:])
	}
	return nil
}

// StatusPacket answers QueryState.
type StatusPacket struct {
	Reply               int16
	CorrectionClockwise int16
	HomePos             int16
	MaxCW               int16
	MaxCCW              int16
	LimitsEnabled       int16
	AngleDeg            float32
	AccumulatedAngleDeg float32
	WLANSSID            [BufSize]byte
	WLANPassword        [BufSize]byte
	WLANSecurity        int16
	EarthOmega          float32
}

// SSID returns WLANSSID up to the first NUL.
func (p *StatusPacket) SSID() string {
	return cString(p.WLANSSID[:])
}

func (p *StatusPacket) SetSSID(s string) {
	setCString(p.WLANSSID[:], s)
}

// MarshalBinary encodes the status. The password field is always written as
// zeros; a stored credential is never echoed back to a client.
func (p *StatusPacket) MarshalBinary() ([]byte, error) {
	b := make([]byte, StatusSize)
	le.PutUint16(b[0:], uint16(p.Reply))
	le.PutUint16(b[2:], uint16(p.CorrectionClockwise))
	le.PutUint16(b[4:], uint16(p.HomePos))
	le.PutUint16(b[6:], uint16(p.MaxCW))
	le.PutUint16(b[8:], uint16(p.MaxCCW))
	le.PutUint16(b[10:], uint16(p.LimitsEnabled))
	putFloat(b[12:], p.AngleDeg)
	putFloat(b[16:], p.AccumulatedAngleDeg)
	copy(b[20:52], p.WLANSSID[:])
	// b[52:84] stays zero.
	le.PutUint16(b[84:], uint16(p.WLANSecurity))
	putFloat(b[86:], p.EarthOmega)
	return b, nil
}

func (p *StatusPacket) UnmarshalBinary(b []byte) error {
	if len(b) < StatusSize {
		return fmt.Errorf("status: %w (%d bytes)", ErrShortPacket, len(b))
	}
	p.Reply = int16(le.Uint16(b[0:]))
	p.CorrectionClockwise = int16(le.Uint16(b[2:]))
	p.HomePos = int16(le.Uint16(b[4:]))
	p.MaxCW = int16(le.Uint16(b[6:]))
	p.MaxCCW = int16(le.Uint16(b[8:]))
	p.LimitsEnabled = int16(le.Uint16(b[10:]))
	p.AngleDeg = getFloat(b[12:])
	p.AccumulatedAngleDeg = getFloat(b[16:])
	copy(p.WLANSSID[:], b[20:52])
	copy(p.WLANPassword[:], b[52:84])
	p.WLANSecurity = int16(le.Uint16(b[84:]))
	p.EarthOmega = getFloat(b[86:])
	return nil
}

var le = binary.LittleEndian

func putFloat(b []byte, f float32) {
	le.PutUint32(b, math.Float32bits(f))
}

func getFloat(b []byte) float32 {
	return math.Float32frombits(le.Uint32(b))
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func setCString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	if len(s) > len(dst)-1 {
		s = s[:len(dst)-1]
	}
	copy(dst, s)
}
