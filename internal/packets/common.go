// Package packets defines the wire format spoken between the game client's
// patcher and the gateway. All integers are little endian.
package packets

// HeaderSize is the length of the header prepended to every packet.
const HeaderSize = 0x04

// Header precedes every packet in both directions. Size is the total length
// of the packet including the header itself.
type Header struct {
	Size uint16
	Type uint16
}

// Packet types understood by the gateway.
const (
	IdentityType       = 0x2001
	KeepAliveType      = 0x2002
	PatchRequestType   = 0x6100
	NoticeRequestType  = 0x6104
	RouteSelectType    = 0x7000
	PatchResponseType  = 0xA100
	NoticeResponseType = 0xA104
)

// Result codes for the PatchResponse packet.
const (
	PatchResultUpToDate = 0x01
	PatchResultUpdate   = 0x02
)

// Actions the client must take for one file named in a PatchResponse.
const (
	ActionAdd     = 0x01
	ActionReplace = 0x02
	ActionRemove  = 0x03
)

// Marshaler is implemented by every packet that can be written to a client.
type Marshaler interface {
	Marshal() []byte
}
