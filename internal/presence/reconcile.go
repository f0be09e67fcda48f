package presence

import (
	"fmt"
	"strings"
)

// FaultWrongDelta is the fault code of a publish carrying stale versions.
const FaultWrongDelta = "Client.BadCall.WrongDelta"

// VersionFault is one rejected publication of a publish request.
type VersionFault struct {
	Index      int // 1-based position in the request
	CurVersion uint32
}

// ParseFault extracts the fault code and version faults of a fault body.
func ParseFault(body []byte) (string, []VersionFault, error) {
	root, err := parseDocument(body)
	if err != nil {
		return "", nil, err
	}
	code := strings.TrimSpace(elementText(child(root, "Faultcode")))

	var faults []VersionFault
	for _, op := range children(root, "details/operation") {
		idx, ok, err := attrUint(op, "index")
		if err != nil {
			return code, nil, err
		}
		if !ok || idx == 0 {
			return code, nil, fmt.Errorf("%w: operation without index", ErrMalformedDocument)
		}
		v, ok, err := attrUint(op, "curVersion")
		if err != nil {
			return code, nil, err
		}
		if !ok {
			return code, nil, fmt.Errorf("%w: operation %d without curVersion", ErrMalformedDocument, idx)
		}
		faults = append(faults, VersionFault{Index: int(idx), CurVersion: v})
	}
	return code, faults, nil
}

// handlePublishResponse resolves a publish outcome. keys are the
// publications of the request in send order and versions the versions they
// were sent with.
func (s *Session) handlePublishResponse(journalID int64, keys []PubKey, versions []uint32, resp Response) {
	if resp.Status < 300 {
		s.finish(journalID, resp.Status, "")
		return
	}
	if resp.Status != 409 || !strings.HasPrefix(resp.ContentType, ContentTypeFault) {
		s.finish(journalID, resp.Status, "")
		s.logger.Warn("publish failed", "status", resp.Status, "content_type", resp.ContentType)
		return
	}

	code, faults, err := ParseFault(resp.Body)
	s.finish(journalID, resp.Status, code)
	if err != nil {
		s.logger.Error("unreadable publish fault", "error", err)
		return
	}
	if code != FaultWrongDelta {
		s.logger.Warn("publish fault dropped", "fault_code", code)
		return
	}

	// The server applies none of a rejected request.
	for _, key := range keys {
		s.cache.MarkUnconfirmed(key)
	}

	restart := false
	for _, f := range faults {
		if f.Index < 1 || f.Index > len(keys) {
			s.logger.Warn("fault index out of range", "index", f.Index, "publications", len(keys))
			continue
		}
		key := keys[f.Index-1]
		s.logger.Info("publication version corrected", "key", key.String(), "from", s.cache.Version(key), "to", f.CurVersion)
		s.cache.CorrectVersion(key, versions[f.Index-1], f.CurVersion)
		s.cache.MarkUnconfirmed(key)
		if key.Category == CategoryDevice {
			restart = true
		}
	}

	if restart {
		if err := s.PublishInitial(); err != nil {
			s.logger.Error("initial republish failed", "error", err)
		}
		return
	}
	if err := s.PublishStatus(); err != nil {
		s.logger.Error("status republish failed", "error", err)
	}
}
