package connection

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/objectfs/s3vfs/pkg/errors"
)

// Profile is the connection document kept by the profile store.
type Profile struct {
	PluginID string        `json:"pluginId"`
	Host     string        `json:"host"`
	UserName string        `json:"userName"`
	Extra    *ProfileExtra `json:"extra,omitempty"`
}

// ProfileExtra holds optional transport overrides. Nil fields keep the defaults.
type ProfileExtra struct {
	Endpoint           *string `json:"endpoint,omitempty"`
	UseHTTPS           *bool   `json:"useHttps,omitempty"`
	VerifyTLS          *bool   `json:"verifyTls,omitempty"`
	VirtualAddressing  *bool   `json:"virtualAddressing,omitempty"`
	MaxListingPageSize *int    `json:"maxListingPageSize,omitempty"`
	MaxCatalogPageSize *int    `json:"maxCatalogPageSize,omitempty"`
}

// ParseProfile decodes a profile document. Comments and trailing commas are tolerated.
func ParseProfile(data string) (*Profile, error) {
	if strings.TrimSpace(data) == "" {
		return nil, errors.NewError(errors.ErrCodeDataCorrupt, "connection profile is empty").
			WithComponent("connection")
	}

	var p Profile
	if err := json.Unmarshal(jsonc.ToJSON([]byte(data)), &p); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDataCorrupt, "connection profile is malformed").
			WithComponent("connection")
	}
	p.Host = strings.TrimSpace(p.Host)
	p.UserName = strings.TrimSpace(p.UserName)
	return &p, nil
}

// Marshal encodes the profile as an indented JSON document.
func (p *Profile) Marshal() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

func (p *Profile) apply(rc *ResolvedContext) {
	if p.Host != "" {
		rc.ExplicitRegion = p.Host
		rc.Region = p.Host
	}
	rc.AccessKeyID = p.UserName

	if p.Extra == nil {
		return
	}
	if p.Extra.Endpoint != nil {
		rc.Endpoint = strings.TrimSpace(*p.Extra.Endpoint)
	}
	if p.Extra.UseHTTPS != nil {
		rc.UseHTTPS = *p.Extra.UseHTTPS
	}
	if p.Extra.VerifyTLS != nil {
		rc.VerifyTLS = *p.Extra.VerifyTLS
	}
	if p.Extra.VirtualAddressing != nil {
		rc.VirtualAddressing = *p.Extra.VirtualAddressing
	}
	if p.Extra.MaxListingPageSize != nil {
		rc.MaxListingPageSize = ClampPageSize(*p.Extra.MaxListingPageSize)
	}
	if p.Extra.MaxCatalogPageSize != nil {
		rc.MaxCatalogPageSize = ClampPageSize(*p.Extra.MaxCatalogPageSize)
	}
}
