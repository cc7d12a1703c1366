package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"
	SecurityContext        = "https://w3id.org/security/v1"
	MultikeyContext        = "https://w3id.org/security/multikey/v1"
	PublicCollection       = "https://www.w3.org/ns/activitystreams#Public"

	ContentTypeActivityJSON = "application/activity+json"
	ContentTypeLDJSON       = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// ActivityKind is the closed set of activity types the inbox acts on.
type ActivityKind int

const (
	KindUnsupported ActivityKind = iota
	KindFollow
	KindUndo
	KindAccept
	KindCreate
)

var activityKinds = map[string]ActivityKind{
	"Follow": KindFollow,
	"Undo":   KindUndo,
	"Accept": KindAccept,
	"Create": KindCreate,
}

func ParseActivityKind(t string) ActivityKind {
	return activityKinds[t]
}

func (k ActivityKind) String() string {
	for name, kind := range activityKinds {
		if kind == k {
			return name
		}
	}
	return "Unsupported"
}

// actorTypes are the object types accepted as actors.
var actorTypes = map[string]bool{
	"Person":       true,
	"Service":      true,
	"Application":  true,
	"Group":        true,
	"Organization": true,
}

// Ref is an object reference. It decodes from a bare IRI, an object with an
// id (or href, for links), or an array whose first element is one of those.
type Ref string

func (r *Ref) UnmarshalJSON(data []byte) error {
	s, err := decodeRef(data)
	if err != nil {
		return err
	}
	*r = Ref(s)
	return nil
}

func (r Ref) String() string {
	return string(r)
}

// Refs is an audience list. A single reference decodes as a one-element list.
type Refs []string

func (rs *Refs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(Refs, 0, len(raw))
		for _, item := range raw {
			s, err := decodeRef(item)
			if err != nil {
				return err
			}
			if s != "" {
				out = append(out, s)
			}
		}
		*rs = out
		return nil
	}
	s, err := decodeRef(data)
	if err != nil {
		return err
	}
	if s == "" {
		*rs = nil
	} else {
		*rs = Refs{s}
	}
	return nil
}

func decodeRef(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	switch data[0] {
	case '"':
		var s string
		err := json.Unmarshal(data, &s)
		return s, err
	case '{':
		var obj struct {
			ID   string `json:"id"`
			Href string `json:"href"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", err
		}
		if obj.ID != "" {
			return obj.ID, nil
		}
		return obj.Href, nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return "", err
		}
		if len(raw) == 0 {
			return "", nil
		}
		return decodeRef(raw[0])
	}
	return "", fmt.Errorf("unexpected reference %s", data)
}

// Activity is an ActivityStreams activity. Object stays raw because it is
// either a reference or an embedded object depending on the type.
type Activity struct {
	Context   any             `json:"@context,omitempty"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     Ref             `json:"actor"`
	Object    json.RawMessage `json:"object,omitempty"`
	To        Refs            `json:"to,omitempty"`
	Cc        Refs            `json:"cc,omitempty"`
	Published string          `json:"published,omitempty"`
}

// ParseActivity decodes an inbound activity document.
func ParseActivity(body []byte) (*Activity, error) {
	var a Activity
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, malformedf("decoding activity: %v", err)
	}
	return &a, nil
}

// Kind classifies the activity type.
func (a *Activity) Kind() ActivityKind {
	return ParseActivityKind(a.Type)
}

// ObjectRef returns the id of the object, embedded or referenced.
func (a *Activity) ObjectRef() string {
	s, err := decodeRef(a.Object)
	if err != nil {
		return ""
	}
	return s
}

// objectIsEmbedded reports whether the object is an inline JSON object.
func (a *Activity) objectIsEmbedded() bool {
	o := bytes.TrimSpace(a.Object)
	return len(o) > 0 && o[0] == '{'
}

// EmbeddedActivity decodes an inline activity object such as the Follow
// inside an Undo. A bare reference yields ErrMalformed.
func (a *Activity) EmbeddedActivity() (*Activity, error) {
	if !a.objectIsEmbedded() {
		return nil, malformedf("%s object is not embedded", a.Type)
	}
	var inner Activity
	if err := json.Unmarshal(a.Object, &inner); err != nil {
		return nil, malformedf("decoding %s object: %v", a.Type, err)
	}
	return &inner, nil
}

// EmbeddedNote decodes an inline Note object.
func (a *Activity) EmbeddedNote() (*Note, error) {
	if !a.objectIsEmbedded() {
		return nil, malformedf("%s object is not embedded", a.Type)
	}
	var note Note
	if err := json.Unmarshal(a.Object, &note); err != nil {
		return nil, malformedf("decoding %s object: %v", a.Type, err)
	}
	if note.Type != "Note" {
		return nil, malformedf("%s object has type %q", a.Type, note.Type)
	}
	return &note, nil
}

// SetObject stores v, a reference string or an object, as the activity object.
func (a *Activity) SetObject(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.Object = buf
	return nil
}

type Note struct {
	Context      any    `json:"@context,omitempty"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	AttributedTo Ref    `json:"attributedTo"`
	Content      string `json:"content"`
	MediaType    string `json:"mediaType,omitempty"`
	URL          Ref    `json:"url,omitempty"`
	Published    string `json:"published,omitempty"`
	To           Refs   `json:"to,omitempty"`
	Cc           Refs   `json:"cc,omitempty"`
}

type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

type CryptographicKey struct {
	ID           string `json:"id"`
	Type         string `json:"type,omitempty"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type Multikey struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// Person is the actor document served for the local account and parsed
// from remote actors.
type Person struct {
	Context                   any               `json:"@context,omitempty"`
	ID                        string            `json:"id"`
	Type                      string            `json:"type"`
	PreferredUsername         string            `json:"preferredUsername,omitempty"`
	Name                      string            `json:"name,omitempty"`
	Inbox                     string            `json:"inbox"`
	Outbox                    string            `json:"outbox,omitempty"`
	Followers                 string            `json:"followers,omitempty"`
	Following                 string            `json:"following,omitempty"`
	Endpoints                 *Endpoints        `json:"endpoints,omitempty"`
	URL                       Ref               `json:"url,omitempty"`
	ManuallyApprovesFollowers bool              `json:"manuallyApprovesFollowers"`
	Discoverable              bool              `json:"discoverable"`
	PublicKey                 *CryptographicKey `json:"publicKey,omitempty"`
	AssertionMethod           []Multikey        `json:"assertionMethod,omitempty"`
}

// Recipient is a delivery target.
type Recipient struct {
	ID          string `json:"id"`
	Inbox       string `json:"inbox"`
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// DeliveryInbox returns the shared inbox when known, the personal one otherwise.
func (r Recipient) DeliveryInbox() string {
	if r.SharedInbox != "" {
		return r.SharedInbox
	}
	return r.Inbox
}

type OrderedCollection struct {
	Context      any    `json:"@context,omitempty"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	TotalItems   int    `json:"totalItems"`
	First        string `json:"first,omitempty"`
	OrderedItems any    `json:"orderedItems,omitempty"`
}

type OrderedCollectionPage struct {
	Context      any    `json:"@context,omitempty"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	TotalItems   int    `json:"totalItems"`
	PartOf       string `json:"partOf"`
	Next         string `json:"next,omitempty"`
	Prev         string `json:"prev,omitempty"`
	OrderedItems any    `json:"orderedItems"`
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
