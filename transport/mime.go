// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"mime"
	"path/filepath"

	"github.com/gogama/urlrequest/sequence"
)

// ContentTypeForFile infers a bare media type, without parameters, from
// the extension of path. It returns the empty string if path has no
// extension or the extension is unknown.
//
// The lookup may read the system MIME tables from disk, so the caller
// must run on r inside an AllowBlocking scope. ContentTypeForFile
// panics otherwise.
func ContentTypeForFile(r *sequence.Runner, path string) string {
	if !r.BlockingAllowed() {
		panic("urlrequest/transport: MIME lookup requires blocking permission")
	}
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return ""
	}
	return mediaType
}
