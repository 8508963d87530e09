// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"net/http"
	"strings"
)

// ParseChallenge extracts the authentication challenge from a 401 or
// 407 response. The second return value is false if the response is
// not a challenge, or the challenge is not one the Loader can answer
// (only the Basic scheme is supported).
func ParseChallenge(resp *http.Response) (AuthChallenge, bool) {
	var c AuthChallenge
	var header string
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		header = "WWW-Authenticate"
	case http.StatusProxyAuthRequired:
		header = "Proxy-Authenticate"
		c.IsProxy = true
	default:
		return c, false
	}

	for _, v := range resp.Header.Values(header) {
		scheme, params := splitChallenge(v)
		if !strings.EqualFold(scheme, "Basic") {
			continue
		}
		c.Scheme = "basic"
		c.Realm = params["realm"]
		if resp.Request != nil && resp.Request.URL != nil {
			c.Host = resp.Request.URL.Host
			c.URL = resp.Request.URL.String()
		}
		return c, true
	}
	return c, false
}

func authorizationHeader(c AuthChallenge) string {
	if c.IsProxy {
		return "Proxy-Authorization"
	}
	return "Authorization"
}

// splitChallenge splits a single challenge of the form
// `Scheme k1=v1, k2="v 2"` into its scheme and lower-cased parameters.
func splitChallenge(v string) (scheme string, params map[string]string) {
	v = strings.TrimSpace(v)
	params = make(map[string]string)
	i := strings.IndexByte(v, ' ')
	if i < 0 {
		return v, params
	}
	scheme, rest := v[:i], v[i+1:]
	for len(rest) > 0 {
		rest = strings.TrimLeft(rest, " ,")
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(rest[:eq]))
		rest = rest[eq+1:]
		var val string
		if strings.HasPrefix(rest, `"`) {
			end := 1
			for end < len(rest) && rest[end] != '"' {
				if rest[end] == '\\' {
					end++
				}
				end++
			}
			if end > len(rest) {
				end = len(rest)
			}
			val = strings.ReplaceAll(rest[1:end], `\`, "")
			if end < len(rest) {
				end++
			}
			rest = rest[end:]
		} else {
			comma := strings.IndexByte(rest, ',')
			if comma < 0 {
				comma = len(rest)
			}
			val = strings.TrimSpace(rest[:comma])
			rest = rest[comma:]
		}
		params[key] = val
	}
	return scheme, params
}
