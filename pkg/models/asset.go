// Package models defines the core domain models for asset graph orchestration.
package models

import (
	"slices"
	"strings"
)

// Tag keys shared by every asset family.
const (
	TagAssetType = "asset_type"
	TagSystem    = "system"
)

// AssetKey is a hierarchical identity: an ordered list of path segments.
// Segments must not contain "/", the separator of its string form.
type AssetKey []string

// NewAssetKey builds a key from its path segments.
func NewAssetKey(path ...string) AssetKey {
	return AssetKey(slices.Clone(path))
}

// ParseAssetKey is the inverse of AssetKey.String.
func ParseAssetKey(value string) AssetKey {
	if value == "" {
		return nil
	}

	return AssetKey(strings.Split(value, "/"))
}

// String joins the path segments with "/"; it is used as the lookup key in maps.
func (k AssetKey) String() string {
	return strings.Join(k, "/")
}

func (k AssetKey) Equal(other AssetKey) bool {
	return slices.Equal(k, other)
}

// Asset is the declarative descriptor of one graph node.
type Asset struct {
	Key               AssetKey          `json:"key"                          validate:"required,min=1,dive,required,excludes=/"`
	Deps              []AssetKey        `json:"deps,omitempty"               validate:"dive,min=1,dive,required,excludes=/"`
	Tags              map[string]string `json:"tags,omitempty"`
	Description       string            `json:"description,omitempty"`
	Producer          Producer          `json:"producer,omitempty"`
	RequiredResources []string          `json:"required_resources,omitempty"`
	Policy            *Policy           `json:"automation_policy,omitempty"`
}

// Kind reports which producer variant the executor has to dispatch to.
func (a *Asset) Kind() UnitKind {
	if a.Producer == nil {
		return UnitKindSourcePlaceholder
	}

	return a.Producer.Kind()
}

// HasTag reports whether the asset carries tag key=value.
func (a *Asset) HasTag(key, value string) bool {
	v, ok := a.Tags[key]

	return ok && v == value
}

// Clone returns a deep copy so that registered descriptors cannot be mutated by callers.
func (a *Asset) Clone() *Asset {
	clone := &Asset{
		Key:               NewAssetKey(a.Key...),
		Description:       a.Description,
		Producer:          a.Producer,
		RequiredResources: slices.Clone(a.RequiredResources),
		Policy:            a.Policy.Clone(),
	}

	if a.Deps != nil {
		clone.Deps = make([]AssetKey, len(a.Deps))
		for i, dep := range a.Deps {
			clone.Deps[i] = NewAssetKey(dep...)
		}
	}

	if a.Tags != nil {
		clone.Tags = make(map[string]string, len(a.Tags))
		for k, v := range a.Tags {
			clone.Tags[k] = v
		}
	}

	return clone
}
