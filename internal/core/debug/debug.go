// Package debug provides optional tooling for inspecting a running gateway:
// a pprof server and human-readable dumps of decoded packets.
package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/patchgate/patchgate/internal/packets"
)

// StartPprofServer starts the default pprof HTTP server that can be accessed
// via localhost to get runtime information about the gateway.
// See https://golang.org/pkg/net/http/pprof/
func StartPprofServer(logger *logrus.Logger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

var dumper = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}

// DumpPacket writes a decoded representation of a framed packet to the debug
// log. direction should describe the flow, e.g. "client->server".
func DumpPacket(logger *logrus.Logger, direction string, data []byte) {
	header, err := packets.PeekHeader(data)
	if err != nil {
		logger.Debugf("[%s] unreadable packet (%d bytes)", direction, len(data))
		return
	}

	decoded, err := decode(header.Type, data)
	if err != nil {
		logger.Debugf("[%s] type=%#04x size=%d (undecodable: %v)", direction, header.Type, header.Size, err)
		return
	}

	logger.Debugf("[%s] type=%#04x size=%d\n%s", direction, header.Type, header.Size, dumper.Sdump(decoded))
}

func decode(packetType uint16, data []byte) (interface{}, error) {
	switch packetType {
	case packets.IdentityType:
		return packets.UnmarshalIdentity(data)
	case packets.KeepAliveType:
		return packets.KeepAlive{}, nil
	case packets.PatchRequestType:
		return packets.UnmarshalPatchRequest(data)
	case packets.PatchResponseType:
		return packets.UnmarshalPatchResponse(data)
	case packets.NoticeRequestType:
		return packets.UnmarshalNoticeRequest(data)
	case packets.NoticeResponseType:
		return packets.UnmarshalNoticeResponse(data)
	case packets.RouteSelectType:
		return packets.UnmarshalRouteSelect(data)
	default:
		return nil, fmt.Errorf("unknown packet type %#04x", packetType)
	}
}
