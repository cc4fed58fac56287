// Package gateway implements the per-version patch negotiation backend. One
// Server instance is bound behind each registered version's listener; every
// accepted connection runs its own session against that listener's target
// manifest.
package gateway

import (
	"context"
	"fmt"
	"path"
	"strconv"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/patchgate/patchgate/internal/core"
	"github.com/patchgate/patchgate/internal/core/client"
	"github.com/patchgate/patchgate/internal/diff"
	"github.com/patchgate/patchgate/internal/journal"
	"github.com/patchgate/patchgate/internal/packets"
	"github.com/patchgate/patchgate/internal/registry"
)

// ServerModule is the identity the gateway reports to clients. The patcher
// checks this string before trusting the rest of the exchange.
const ServerModule = "GatewayServer"

// Locality byte sent with the server identity.
const serverLocality = 0x12

// Server is the patch gateway Backend for a single target version.
type Server struct {
	Name     string
	Config   *core.Config
	Logger   *logrus.Logger
	Registry *registry.Registry
	// Target version this listener patches clients to.
	Version *registry.PatchVersion
	// Optional request journal; nil when the operator disabled it.
	Journal *journal.Journal

	notices []packets.Notice
	// Change lists keyed by reported version. Manifests are immutable for the
	// process lifetime so entries never expire.
	diffCache *gocache.Cache
}

func (s *Server) Identifier() string {
	return s.Name
}

func (s *Server) Init(ctx context.Context) error {
	s.diffCache = gocache.New(gocache.NoExpiration, 0)

	for _, notice := range s.Config.Patch.Notices {
		s.notices = append(s.notices, packets.Notice{
			Subject:   notice.Subject,
			Article:   notice.Article,
			Published: notice.Published,
		})
	}
	return nil
}

func (s *Server) SetUpClient(c *client.Client) {
	c.DebugTags["server_type"] = "gateway"
	c.DebugTags["target_version"] = s.Version.ID
}

// Handshake sends the server's identity. The patcher sits on the socket
// until it sees this packet, so it has to go out before anything is read.
func (s *Server) Handshake(c *client.Client) error {
	return c.Send(packets.Identity{Module: ServerModule, Locality: serverLocality})
}

func (s *Server) Handle(ctx context.Context, c *client.Client, data []byte) error {
	header, err := packets.PeekHeader(data)
	if err != nil {
		return err
	}

	switch header.Type {
	case packets.IdentityType:
		err = s.handleIdentity(c, data)
	case packets.KeepAliveType:
		// Nothing to do; the patcher just wants the connection held open.
	case packets.PatchRequestType:
		err = s.handlePatchRequest(c, data)
	case packets.NoticeRequestType:
		err = s.handleNoticeRequest(c, data)
	default:
		// The protocol defines no error path, so an unexpected packet ends
		// the session without a reply.
		err = fmt.Errorf("unexpected packet %#04x from %s", header.Type, c.IPAddr())
	}
	return err
}

// handleIdentity records the client's identity announcement. The server
// already introduced itself during the handshake, so nothing goes back.
func (s *Server) handleIdentity(c *client.Client, data []byte) error {
	identity, err := packets.UnmarshalIdentity(data)
	if err != nil {
		return err
	}
	s.Logger.Debugf("[%s] client module %q (locality %#02x) from %s",
		s.Name, identity.Module, identity.Locality, c.IPAddr())
	return nil
}

// handlePatchRequest runs the diff between the client's reported state and
// this listener's target manifest and answers with either an up-to-date
// notice or the change list.
func (s *Server) handlePatchRequest(c *client.Client, data []byte) error {
	request, err := packets.UnmarshalPatchRequest(data)
	if err != nil {
		return err
	}
	c.ReportedVersion = request.Version

	if request.Version == uint32(s.Version.ID) {
		s.Logger.Infof("[%s] client %s at version %d is up to date", s.Name, c.IPAddr(), request.Version)
		s.recordRequest(c, int(request.Version), 0, true)
		return c.Send(packets.PatchResponse{Result: packets.PatchResultUpToDate})
	}

	changes := s.changesFor(int(request.Version))
	if len(changes) == 0 {
		// Different version number but identical content.
		s.recordRequest(c, int(request.Version), 0, true)
		return c.Send(packets.PatchResponse{Result: packets.PatchResultUpToDate})
	}

	s.Logger.Infof("[%s] client %s moving %d -> %d (%d changes)",
		s.Name, c.IPAddr(), request.Version, s.Version.ID, len(changes))
	s.recordRequest(c, int(request.Version), len(changes), false)

	return c.Send(s.buildPatchResponse(changes))
}

// changesFor returns the change list for a client reporting sourceVersion,
// computing and caching it on first use.
func (s *Server) changesFor(sourceVersion int) []diff.ChangeEntry {
	key := strconv.Itoa(sourceVersion)
	if cached, ok := s.diffCache.Get(key); ok {
		return cached.([]diff.ChangeEntry)
	}

	changes := diff.Diff(s.sourceManifest(sourceVersion), s.Version.Manifest, s.Registry.Base())
	s.diffCache.Set(key, changes, gocache.NoExpiration)
	return changes
}

// sourceManifest resolves the client's reported version to the best
// available approximation of its file state. An unknown version yields an
// empty manifest: every target file is offered and nothing is removed.
func (s *Server) sourceManifest(version int) registry.Manifest {
	if v := s.Registry.Lookup(version); v != nil {
		return v.Manifest
	}
	s.Logger.Debugf("[%s] no manifest for reported version %d, treating as empty", s.Name, version)
	return nil
}

func (s *Server) buildPatchResponse(changes []diff.ChangeEntry) packets.PatchResponse {
	response := packets.PatchResponse{
		Result: packets.PatchResultUpdate,
		Host:   s.Config.FileServerHost(),
		Port:   uint16(s.Config.FileServer.Port),
		// The file server mirrors the patch root, so target files live under
		// <base path>/<version>/.
		BasePath:      path.Join(s.Config.FileServer.BasePath, strconv.Itoa(s.Version.ID)),
		TargetVersion: uint32(s.Version.ID),
	}

	for _, change := range changes {
		entry := packets.PatchEntry{Path: change.Path, Size: change.Size, Checksum: change.Checksum}
		switch change.Action {
		case diff.Add:
			entry.Action = packets.ActionAdd
		case diff.Replace:
			entry.Action = packets.ActionReplace
		case diff.Remove:
			entry.Action = packets.ActionRemove
		}
		response.Entries = append(response.Entries, entry)
	}

	return response
}

func (s *Server) handleNoticeRequest(c *client.Client, data []byte) error {
	if _, err := packets.UnmarshalNoticeRequest(data); err != nil {
		return err
	}
	return c.Send(packets.NoticeResponse{Notices: s.notices})
}

// recordRequest writes the outcome to the journal when one is configured.
// Journal failures are logged and otherwise ignored; telemetry must never
// break a negotiation.
func (s *Server) recordRequest(c *client.Client, reportedVersion, changeCount int, upToDate bool) {
	if s.Journal == nil {
		return
	}

	err := s.Journal.RecordPatchRequest(&journal.PatchRequestRecord{
		RemoteAddr:      c.IPAddr(),
		ReportedVersion: reportedVersion,
		TargetVersion:   s.Version.ID,
		ChangeCount:     changeCount,
		UpToDate:        upToDate,
	})
	if err != nil {
		s.Logger.Warnf("[%s] failed to journal patch request: %v", s.Name, err)
	}
}
