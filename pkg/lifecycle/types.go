package lifecycle

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ObjectTypeFile is the entity type of assets.
const ObjectTypeFile = "file"

// Method is the kind of change carried by a ChangeEvent.
type Method string

// Method constants (typed).
const (
	MethodCreate Method = "CREATE"
	MethodUpdate Method = "UPDATE"
	MethodDelete Method = "DELETE"
)

// UnmarshalJSON accepts both the canonical names and the HTTP verbs emitted
// by the upstream event system (POST, PUT).
func (m *Method) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToUpper(s) {
	case "CREATE", "POST":
		*m = MethodCreate
	case "UPDATE", "PUT", "PATCH":
		*m = MethodUpdate
	case "DELETE":
		*m = MethodDelete
	default:
		return fmt.Errorf("unknown event method %q", s)
	}
	return nil
}

// Dimensions is a width/height pair in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// ByteSize is the advisory declared size of an asset. Clients pass it as a
// query value, so it decodes from numbers and numeric strings; anything else
// decodes to 0 rather than failing the whole asset.
type ByteSize int64

// UnmarshalJSON never fails. Fractions are truncated; unparseable values,
// negative values and non-scalars yield 0.
func (s *ByteSize) UnmarshalJSON(b []byte) error {
	*s = 0
	raw := strings.TrimSpace(strings.Trim(string(b), `"`))
	if raw == "" || raw == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 0 {
			*s = ByteSize(n)
		}
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 && f < math.MaxInt64 {
		*s = ByteSize(int64(f))
	}
	return nil
}

// DerivativeSpec is a requested resize target. URL is empty until the
// derivative has been produced; once set the spec is never rewritten.
type DerivativeSpec struct {
	Dimensions Dimensions `json:"dimensions"`
	URL        string     `json:"url,omitempty"`
}

// Resolved reports whether the derivative has been produced.
func (d DerivativeSpec) Resolved() bool {
	return d.URL != ""
}

// Asset is the typed view of an entity with object_type "file".
type Asset struct {
	ID         string           `json:"id"`
	ObjectType string           `json:"object_type"`
	User       string           `json:"user,omitempty"`
	Title      string           `json:"title,omitempty"`
	MimeType   string           `json:"mime_type"`
	URL        string           `json:"url,omitempty"`
	Size       ByteSize         `json:"size,omitempty"`
	Hosted     bool             `json:"hosted"`
	Standalone bool             `json:"standalone"`
	Uploaded   bool             `json:"uploaded"`
	Resizes    []DerivativeSpec `json:"resizes,omitempty"`
	Dimensions *Dimensions      `json:"dimensions,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`

	// hasResizes distinguishes an empty resizes list from an absent one.
	hasResizes bool
}

// HasResizes reports whether the source document carried a resizes field.
func (a *Asset) HasResizes() bool {
	return a.hasResizes || a.Resizes != nil
}

// ResizeComplete reports whether every derivative has been produced.
func (a *Asset) ResizeComplete() bool {
	for _, r := range a.Resizes {
		if !r.Resolved() {
			return false
		}
	}
	return true
}

// PendingResizes returns the number of derivatives still lacking a URL.
func (a *Asset) PendingResizes() int {
	n := 0
	for _, r := range a.Resizes {
		if !r.Resolved() {
			n++
		}
	}
	return n
}

// StorageURLs returns the primary URL followed by every resolved
// derivative URL. Unresolved derivatives contribute nothing.
func (a *Asset) StorageURLs() []string {
	urls := make([]string, 0, len(a.Resizes)+1)
	if a.URL != "" {
		urls = append(urls, a.URL)
	}
	for _, r := range a.Resizes {
		if r.Resolved() {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// Document is the raw JSON body of an entity.
type Document map[string]any

// Clone returns a deep copy of the document through a JSON round trip, which
// also normalizes Go values (structs, typed slices) into their JSON shapes.
func (d Document) Clone() (Document, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// String returns the named field when it holds a string.
func (d Document) String(key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// Bool returns the named field when it holds a boolean (or the strings
// "true"/"false").
func (d Document) Bool(key string) (bool, bool) {
	switch v := d[key].(type) {
	case bool:
		return v, true
	case string:
		switch v {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// Edge is an explicit relation carried by relation-style events.
type Edge struct {
	Src  string `json:"src,omitempty"`
	Dst  string `json:"dst"`
	Name string `json:"name,omitempty"`
}

// Entity is any record of the object graph.
type Entity struct {
	ID         string
	ObjectType string
	Edge       *Edge
	CreatedAt  time.Time
	Doc        Document
}

// NewEntity builds an Entity from a document, extracting the well-known
// fields.
func NewEntity(doc Document) (*Entity, error) {
	e := &Entity{Doc: doc}
	if err := e.extract(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Entity) extract() error {
	e.ID = e.Doc.String("id")
	e.ObjectType = e.Doc.String("object_type")
	e.Edge = nil
	if raw, ok := e.Doc["edge"]; ok && raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		var edge Edge
		if err := json.Unmarshal(b, &edge); err != nil {
			return fmt.Errorf("decode edge: %w", err)
		}
		if edge.Dst != "" {
			e.Edge = &edge
		}
	}
	if s := e.Doc.String("created_at"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err == nil {
			e.CreatedAt = t
		}
	}
	return nil
}

// UnmarshalJSON decodes the document and extracts the well-known fields.
func (e *Entity) UnmarshalJSON(b []byte) error {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if doc == nil {
		doc = Document{}
	}
	e.Doc = doc
	return e.extract()
}

// MarshalJSON encodes the underlying document.
func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Doc)
}

// Asset decodes the entity into its typed asset view.
func (e *Entity) Asset() (*Asset, error) {
	if e.ObjectType != ObjectTypeFile {
		return nil, fmt.Errorf("%w: %q has type %q", ErrNotAnAsset, e.ID, e.ObjectType)
	}
	b, err := json.Marshal(e.Doc)
	if err != nil {
		return nil, err
	}
	var a Asset
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode asset %s: %w", e.ID, err)
	}
	_, a.hasResizes = e.Doc["resizes"]
	return &a, nil
}

// ChangeEvent is a notification of a create, update or delete of any
// entity, as delivered by the event transport.
type ChangeEvent struct {
	Method   Method  `json:"method"`
	Object   bool    `json:"object"`
	Current  *Entity `json:"current,omitempty"`
	Previous *Entity `json:"previous,omitempty"`
}

// ObjectType returns the type of the changed entity, preferring the
// current state over the previous one.
func (ev *ChangeEvent) ObjectType() string {
	if ev.Current != nil {
		return ev.Current.ObjectType
	}
	if ev.Previous != nil {
		return ev.Previous.ObjectType
	}
	return ""
}

// EntityID returns the id of the changed entity.
func (ev *ChangeEvent) EntityID() string {
	if ev.Current != nil && ev.Current.ID != "" {
		return ev.Current.ID
	}
	if ev.Previous != nil {
		return ev.Previous.ID
	}
	return ""
}

// Range bounds a field of a search query. Zero values are unbounded.
type Range struct {
	Gte time.Time
	Lte time.Time
}

// SearchQuery is a filtered, cursor-paginated search over entities.
type SearchQuery struct {
	ObjectType string
	Filters    map[string]string
	Range      map[string]Range
	Count      int
	After      string
}

// SearchResult is one page of entity ids. Last is the cursor to pass as
// After for the next page.
type SearchResult struct {
	Results []string
	Last    string
}
