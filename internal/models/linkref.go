package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LinkRef is a reference from one annotation to another. It is a closed sum
// type: SameDocLink (legacy bare-id form) or CrossDocLink (canonical form).
type LinkRef interface {
	TargetID() string
	isLinkRef()
}

// SameDocLink is the legacy shorthand stored as a bare id string. It is
// implicitly scoped to the owning annotation's document.
type SameDocLink struct {
	ID string
}

// TargetID implements LinkRef.
func (l SameDocLink) TargetID() string { return l.ID }
func (SameDocLink) isLinkRef()         {}

// CrossDocLink is the canonical object form. An empty ID with a FilePath is
// a coarse reference to the whole document.
type CrossDocLink struct {
	ID       string `json:"id"`
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
}

// TargetID implements LinkRef.
func (l CrossDocLink) TargetID() string { return l.ID }
func (CrossDocLink) isLinkRef()         {}

// NewCrossDocLink builds the canonical form, deriving fileName from filePath.
func NewCrossDocLink(id, filePath string) CrossDocLink {
	return CrossDocLink{ID: id, FilePath: filePath, FileName: FileNameOf(filePath)}
}

// NewDocumentLink builds a coarse reference to filePath itself.
func NewDocumentLink(filePath string) CrossDocLink {
	return NewCrossDocLink("", filePath)
}

// LinkKey is the normalized identity of a link target.
type LinkKey struct {
	ID       string
	FilePath string
}

// Coarse reports whether k names a document rather than an annotation.
func (k LinkKey) Coarse() bool { return k.ID == "" }

// Normalize resolves ref against the owning document. A bare id and an
// object with an empty filePath both denote the owner's document.
func Normalize(ref LinkRef, ownerPath string) LinkKey {
	switch l := ref.(type) {
	case SameDocLink:
		return LinkKey{ID: l.ID, FilePath: ownerPath}
	case CrossDocLink:
		if l.FilePath == "" {
			return LinkKey{ID: l.ID, FilePath: ownerPath}
		}
		return LinkKey{ID: l.ID, FilePath: l.FilePath}
	default:
		return LinkKey{}
	}
}

// SameLink reports whether a and b denote the same target once normalized
// against the owner's document.
func SameLink(a, b LinkRef, ownerPath string) bool {
	return Normalize(a, ownerPath) == Normalize(b, ownerPath)
}

// Links is an ordered list of LinkRef with a JSON codec that accepts both
// the string and object forms.
type Links []LinkRef

// IndexOf returns the position of the first link equal to key, or -1.
func (ls Links) IndexOf(key LinkKey, ownerPath string) int {
	for i, l := range ls {
		if Normalize(l, ownerPath) == key {
			return i
		}
	}
	return -1
}

// MarshalJSON writes SameDocLink as a string and CrossDocLink as an object.
func (ls Links) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(ls))
	for _, l := range ls {
		switch v := l.(type) {
		case SameDocLink:
			out = append(out, v.ID)
		case CrossDocLink:
			out = append(out, v)
		default:
			return nil, fmt.Errorf("models: unknown link type %T", l)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts null, and arrays mixing strings and objects.
// Entries naming neither an id nor a document are dropped.
func (ls *Links) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ls = Links{}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("models: decode links: %w", err)
	}
	out := make(Links, 0, len(raw))
	for _, item := range raw {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var id string
			if err := json.Unmarshal(trimmed, &id); err != nil {
				return fmt.Errorf("models: decode link id: %w", err)
			}
			if id != "" {
				out = append(out, SameDocLink{ID: id})
			}
			continue
		}
		var obj CrossDocLink
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("models: decode link object: %w", err)
		}
		if obj.ID == "" && obj.FilePath == "" {
			continue
		}
		out = append(out, obj)
	}
	*ls = out
	return nil
}
