package packets

// Identity announces which module is on the other end of the connection.
// The server sends its own immediately after accepting and the client
// responds in kind before requesting a patch.
type Identity struct {
	Module   string
	Locality uint8
}

func (p Identity) Marshal() []byte {
	w := &writer{}
	w.writeString(p.Module)
	w.writeUint8(p.Locality)
	return w.frame(IdentityType)
}

func UnmarshalIdentity(data []byte) (Identity, error) {
	r, err := newReader(data)
	if err != nil {
		return Identity{}, err
	}
	var p Identity
	if p.Module, err = r.readString(); err != nil {
		return Identity{}, err
	}
	if p.Locality, err = r.readUint8(); err != nil {
		return Identity{}, err
	}
	return p, nil
}

// KeepAlive is sent periodically by the client's patcher and carries nothing.
type KeepAlive struct{}

func (p KeepAlive) Marshal() []byte {
	w := &writer{}
	return w.frame(KeepAliveType)
}

// PatchRequest reports the client's current content version.
type PatchRequest struct {
	Content uint8
	Module  string
	Version uint32
}

func (p PatchRequest) Marshal() []byte {
	w := &writer{}
	w.writeUint8(p.Content)
	w.writeString(p.Module)
	w.writeUint32(p.Version)
	return w.frame(PatchRequestType)
}

func UnmarshalPatchRequest(data []byte) (PatchRequest, error) {
	r, err := newReader(data)
	if err != nil {
		return PatchRequest{}, err
	}
	var p PatchRequest
	if p.Content, err = r.readUint8(); err != nil {
		return PatchRequest{}, err
	}
	if p.Module, err = r.readString(); err != nil {
		return PatchRequest{}, err
	}
	if p.Version, err = r.readUint32(); err != nil {
		return PatchRequest{}, err
	}
	return p, nil
}

// PatchEntry names one file the client must add, replace, or remove to reach
// the target version. Size and Checksum are zero for removals.
type PatchEntry struct {
	Action   uint8
	Path     string
	Size     uint32
	Checksum uint32
}

// PatchResponse answers a PatchRequest. Result is PatchResultUpToDate when
// the client already matches the target version; otherwise it carries the
// static file server's coordinates and the ordered change list.
type PatchResponse struct {
	Result        uint8
	Host          string
	Port          uint16
	BasePath      string
	TargetVersion uint32
	Entries       []PatchEntry
}

func (p PatchResponse) Marshal() []byte {
	w := &writer{}
	w.writeUint8(p.Result)
	if p.Result == PatchResultUpToDate {
		w.writeUint8(0)
		return w.frame(PatchResponseType)
	}
	w.writeString(p.Host)
	w.writeUint16(p.Port)
	w.writeString(p.BasePath)
	w.writeUint32(p.TargetVersion)
	w.writeUint16(uint16(len(p.Entries)))
	for _, entry := range p.Entries {
		w.writeUint8(entry.Action)
		w.writeString(entry.Path)
		w.writeUint32(entry.Size)
		w.writeUint32(entry.Checksum)
	}
	return w.frame(PatchResponseType)
}

func UnmarshalPatchResponse(data []byte) (PatchResponse, error) {
	r, err := newReader(data)
	if err != nil {
		return PatchResponse{}, err
	}
	var p PatchResponse
	if p.Result, err = r.readUint8(); err != nil {
		return PatchResponse{}, err
	}
	if p.Result == PatchResultUpToDate {
		_, err = r.readUint8()
		return p, err
	}
	if p.Host, err = r.readString(); err != nil {
		return PatchResponse{}, err
	}
	if p.Port, err = r.readUint16(); err != nil {
		return PatchResponse{}, err
	}
	if p.BasePath, err = r.readString(); err != nil {
		return PatchResponse{}, err
	}
	if p.TargetVersion, err = r.readUint32(); err != nil {
		return PatchResponse{}, err
	}
	count, err := r.readUint16()
	if err != nil {
		return PatchResponse{}, err
	}
	for i := 0; i < int(count); i++ {
		var entry PatchEntry
		if entry.Action, err = r.readUint8(); err != nil {
			return PatchResponse{}, err
		}
		if entry.Path, err = r.readString(); err != nil {
			return PatchResponse{}, err
		}
		if entry.Size, err = r.readUint32(); err != nil {
			return PatchResponse{}, err
		}
		if entry.Checksum, err = r.readUint32(); err != nil {
			return PatchResponse{}, err
		}
		p.Entries = append(p.Entries, entry)
	}
	return p, nil
}

// NoticeRequest asks for the gateway news items shown on the patch screen.
type NoticeRequest struct {
	Unknown uint8
}

func (p NoticeRequest) Marshal() []byte {
	w := &writer{}
	w.writeUint8(p.Unknown)
	return w.frame(NoticeRequestType)
}

func UnmarshalNoticeRequest(data []byte) (NoticeRequest, error) {
	r, err := newReader(data)
	if err != nil {
		return NoticeRequest{}, err
	}
	var p NoticeRequest
	if p.Unknown, err = r.readUint8(); err != nil {
		return NoticeRequest{}, err
	}
	return p, nil
}

// Notice is one news item displayed by the patcher. The article body is
// rendered from wide text.
type Notice struct {
	Subject   string
	Article   string
	Published int64
}

// NoticeResponse carries the configured gateway notices.
type NoticeResponse struct {
	Notices []Notice
}

func (p NoticeResponse) Marshal() []byte {
	w := &writer{}
	w.writeUint16(uint16(len(p.Notices)))
	for _, notice := range p.Notices {
		w.writeString(notice.Subject)
		w.writeWideString(notice.Article)
		w.writeInt64(notice.Published)
	}
	return w.frame(NoticeResponseType)
}

func UnmarshalNoticeResponse(data []byte) (NoticeResponse, error) {
	r, err := newReader(data)
	if err != nil {
		return NoticeResponse{}, err
	}
	count, err := r.readUint16()
	if err != nil {
		return NoticeResponse{}, err
	}
	var p NoticeResponse
	for i := 0; i < int(count); i++ {
		var notice Notice
		if notice.Subject, err = r.readString(); err != nil {
			return NoticeResponse{}, err
		}
		if notice.Article, err = r.readWideString(); err != nil {
			return NoticeResponse{}, err
		}
		if notice.Published, err = r.readInt64(); err != nil {
			return NoticeResponse{}, err
		}
		p.Notices = append(p.Notices, notice)
	}
	return p, nil
}

// RouteSelect is the preamble a launcher writes to the redirect proxy to name
// the version it wants. It is consumed by the proxy and never reaches a
// gateway session.
type RouteSelect struct {
	Version uint16
}

func (p RouteSelect) Marshal() []byte {
	w := &writer{}
	w.writeUint16(p.Version)
	return w.frame(RouteSelectType)
}

func UnmarshalRouteSelect(data []byte) (RouteSelect, error) {
	r, err := newReader(data)
	if err != nil {
		return RouteSelect{}, err
	}
	var p RouteSelect
	if p.Version, err = r.readUint16(); err != nil {
		return RouteSelect{}, err
	}
	return p, nil
}
