// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gogama/urlrequest/request"
	"golang.org/x/net/publicsuffix"
)

// ResourceType classifies a load the way a browser does.
type ResourceType int

const (
	ResourceMainFrame ResourceType = iota
	ResourceSubFrame
	ResourceSubresource
)

// CredentialsMode controls whether cookies are sent and stored.
type CredentialsMode int

const (
	// CredentialsOmit neither sends nor stores cookies.
	CredentialsOmit CredentialsMode = iota
	// CredentialsInclude sends cookies from, and stores cookies in, the
	// browser context's cookie jar.
	CredentialsInclude
)

// A Request is the transport-native description of a load.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	// RenderFrameID is the routing identifier of the frame the load
	// belongs to, or RoutingNone.
	RenderFrameID int
	ResourceType  ResourceType

	// Initiator is the origin of the load, e.g. "https://example.com".
	Initiator string

	// SiteForCookies is the site against which same-site cookie
	// restrictions are evaluated. Nil means no first-party site.
	SiteForCookies *url.URL

	// ForceIgnoreSiteForCookies sends same-site cookies regardless of
	// SiteForCookies.
	ForceIgnoreSiteForCookies bool

	CredentialsMode CredentialsMode
	CookieJar       http.CookieJar

	LoadFlags request.Flags
}

// NewRequest copies the fields of d into a new Request. The request is
// a subresource load initiated by the origin of d's URL. If d allows
// stored credentials, cookies are included and same-site cookies are
// sent for that origin.
//
// An error is returned if d's URL is not well-formed.
func NewRequest(d *request.Descriptor) (*Request, error) {
	u, ok := d.ParsedURL()
	if !ok {
		return nil, fmt.Errorf("urlrequest/transport: invalid URL %q", d.URL())
	}
	r := &Request{
		Method:        d.Method(),
		URL:           u,
		Header:        d.Header(),
		RenderFrameID: RoutingNone,
		ResourceType:  ResourceSubresource,
		Initiator:     Origin(u),
		LoadFlags:     d.Flags(),
	}
	if d.Flags().Has(request.FlagAllowStoredCredentials) {
		r.CredentialsMode = CredentialsInclude
		r.ForceIgnoreSiteForCookies = true
		r.SiteForCookies = &url.URL{Scheme: u.Scheme, Host: u.Host}
	}
	return r, nil
}

// Origin returns the serialized origin of u: scheme, host and any
// explicit port. Opaque URLs have the origin "null".
func Origin(u *url.URL) string {
	if u.Host == "" {
		return "null"
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// SameSite reports whether u and site share a registrable domain
// (eTLD+1) and a scheme class. A nil site never matches.
func SameSite(u, site *url.URL) bool {
	if site == nil || u == nil {
		return false
	}
	if secureScheme(u.Scheme) != secureScheme(site.Scheme) {
		return false
	}
	return registrableDomain(u.Hostname()) == registrableDomain(site.Hostname())
}

func secureScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "https" || scheme == "wss"
}

func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

func (r *Request) sendsCookies(u *url.URL) bool {
	if r.CredentialsMode != CredentialsInclude || r.CookieJar == nil {
		return false
	}
	return r.ForceIgnoreSiteForCookies || SameSite(u, r.SiteForCookies)
}
