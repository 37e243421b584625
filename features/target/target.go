package target

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Type string

const (
	TypeWebhook   Type = "webhook"
	TypeWordPress Type = "wordpress"
	TypeFacebook  Type = "facebook"
	TypeLinkedIn  Type = "linkedin"
)

// Types lists the supported destination kinds.
var Types = []Type{TypeWebhook, TypeWordPress, TypeFacebook, TypeLinkedIn}

type rule struct {
	required []string
	urls     []string
}

var rules = map[Type]rule{
	TypeWebhook:   {required: []string{"url"}, urls: []string{"url"}},
	TypeWordPress: {required: []string{"url", "username", "app_password"}, urls: []string{"url"}},
	TypeFacebook:  {required: []string{"page_id", "access_token"}},
	TypeLinkedIn:  {required: []string{"organization_id", "access_token"}},
}

var ErrInvalidTarget = errors.New("invalid target")

// CorruptError reports a stored target that no longer passes validation.
// DomainID is the owner recorded on the row, so callers can check ownership
// before revealing anything about the config.
type CorruptError struct {
	ID       string
	DomainID string
	Err      error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("stored target %s: %v", e.ID, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (t Type) Supported() bool {
	_, ok := rules[t]
	return ok
}

// Config is the destination specific key/value payload of a target.
type Config map[string]any

// Target is a configured publishing destination owned by one domain.
type Target struct {
	id        string
	domainID  string
	typ       Type
	config    Config
	enabled   bool
	createdAt time.Time
}

// Snapshot is the exported form of a Target used by storage and JSON.
type Snapshot struct {
	ID        string    `json:"id"`
	DomainID  string    `json:"domain_id"`
	Type      Type      `json:"type"`
	Config    Config    `json:"config"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates an enabled target.
func New(id, domainID string, typ Type, config Config) (Target, error) {
	return Reconstitute(Snapshot{
		ID:        id,
		DomainID:  domainID,
		Type:      typ,
		Config:    config,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	})
}

func Reconstitute(s Snapshot) (Target, error) {
	t := Target{
		id:        s.ID,
		domainID:  s.DomainID,
		typ:       s.Type,
		config:    cloneConfig(s.Config),
		enabled:   s.Enabled,
		createdAt: s.CreatedAt,
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

func (t Target) ID() string           { return t.id }
func (t Target) DomainID() string     { return t.domainID }
func (t Target) Type() Type           { return t.typ }
func (t Target) Enabled() bool        { return t.enabled }
func (t Target) CreatedAt() time.Time { return t.createdAt }

// Config returns a deep copy of the target configuration.
func (t Target) Config() Config { return cloneConfig(t.config) }

// BelongsTo reports whether the target is owned by domainID.
func (t Target) BelongsTo(domainID string) bool {
	return t.domainID == domainID
}

// WithConfig returns a copy whose configuration is partial deep-merged over the current one.
func (t Target) WithConfig(partial Config) Target {
	next := t
	next.config = mergeConfig(cloneConfig(t.config), cloneConfig(partial))
	return next
}

func (t Target) ToggleEnabled() Target {
	next := t
	next.config = cloneConfig(t.config)
	next.enabled = !t.enabled
	return next
}

// Validate checks identity, type and the type specific configuration keys.
func (t Target) Validate() error {
	if strings.TrimSpace(t.id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTarget)
	}
	if strings.TrimSpace(t.domainID) == "" {
		return fmt.Errorf("%w: domain id is required", ErrInvalidTarget)
	}
	if t.typ == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidTarget)
	}
	r, ok := rules[t.typ]
	if !ok {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidTarget, t.typ)
	}
	if t.config == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidTarget)
	}
	for _, key := range r.required {
		s, ok := t.config[key].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: %s config requires %q", ErrInvalidTarget, t.typ, key)
		}
	}
	for _, key := range r.urls {
		if err := checkURL(t.config[key].(string)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidTarget, key, err)
		}
	}
	return nil
}

func (t Target) Snapshot() Snapshot {
	return Snapshot{
		ID:        t.id,
		DomainID:  t.domainID,
		Type:      t.typ,
		Config:    cloneConfig(t.config),
		Enabled:   t.enabled,
		CreatedAt: t.createdAt,
	}
}

func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Hostname() == "" {
		return fmt.Errorf("host is required")
	}
	if u.User != nil {
		return fmt.Errorf("credentials must not be embedded in the url")
	}
	return nil
}

func cloneConfig(c Config) Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(cloneConfig(Config(val)))
	case Config:
		return cloneConfig(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

// mergeConfig merges src into dst recursively; nested maps merge, everything else replaces.
func mergeConfig(dst, src Config) Config {
	if dst == nil {
		dst = Config{}
	}
	for k, v := range src {
		srcMap, srcIsMap := asMap(v)
		dstMap, dstIsMap := asMap(dst[k])
		if srcIsMap && dstIsMap {
			dst[k] = map[string]any(mergeConfig(dstMap, srcMap))
			continue
		}
		dst[k] = v
	}
	return dst
}

func asMap(v any) (Config, bool) {
	switch m := v.(type) {
	case map[string]any:
		return Config(m), true
	case Config:
		return m, true
	}
	return nil, false
}
