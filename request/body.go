// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"io"
)

const badBodyTypeMsg = "urlrequest/request: invalid type (for body use nil, " +
	"string, []byte, io.Reader or io.ReadCloser)"

// An ElementType identifies the kind of data held by a body Element.
type ElementType int

const (
	// ElementEmpty is the type of the zero Element.
	ElementEmpty ElementType = iota
	// ElementBytes is the type of an in-memory byte buffer element.
	ElementBytes
	// ElementFile is the type of an element referring to a local file.
	ElementFile
)

// String returns the name of the element type.
func (t ElementType) String() string {
	switch t {
	case ElementEmpty:
		return "empty"
	case ElementBytes:
		return "bytes"
	case ElementFile:
		return "file"
	default:
		return "unknown"
	}
}

// An Element is one part of a request Body: either a byte buffer or a
// reference to a local file.
type Element struct {
	typ   ElementType
	bytes []byte
	file  string
}

// BytesElement returns an element holding a copy of b.
func BytesElement(b []byte) Element {
	b2 := make([]byte, len(b))
	copy(b2, b)
	return Element{typ: ElementBytes, bytes: b2}
}

// FileElement returns an element referring to the file at path.
func FileElement(path string) Element {
	return Element{typ: ElementFile, file: path}
}

// Type returns the element type.
func (e Element) Type() ElementType {
	return e.typ
}

// Bytes returns the element's bytes. It is nil unless the element type
// is ElementBytes.
func (e Element) Bytes() []byte {
	return e.bytes
}

// File returns the element's file path. It is empty unless the element
// type is ElementFile.
func (e Element) File() string {
	return e.file
}

// A Body is an ordered list of elements to upload with a request.
//
// Only a body with exactly one bytes or file element can be sent.
// Multi-element bodies are accepted here but are not uploaded.
type Body struct {
	elements []Element
	readOnly bool
}

// NewBody returns a body containing the given elements.
func NewBody(elements ...Element) *Body {
	b := &Body{}
	b.elements = append(b.elements, elements...)
	return b
}

// NewBytesBody returns a single-element body whose content is derived
// from body using BodyBytes. A nil body yields a nil *Body.
func NewBytesBody(body interface{}) (*Body, error) {
	p, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	return NewBody(BytesElement(p)), nil
}

// Elements returns a copy of the body's element list.
func (b *Body) Elements() []Element {
	es := make([]Element, len(b.elements))
	copy(es, b.elements)
	return es
}

// Len returns the number of elements in the body.
func (b *Body) Len() int {
	return len(b.elements)
}

// AddElement appends an element to the body.
func (b *Body) AddElement(e Element) {
	if b.readOnly {
		panic("urlrequest/request: body is read-only")
	}
	b.elements = append(b.elements, e)
}

// ReadOnly indicates whether the body is read-only.
func (b *Body) ReadOnly() bool {
	return b.readOnly
}

// SetReadOnly sets or clears the read-only mark.
func (b *Body) SetReadOnly(readOnly bool) {
	b.readOnly = readOnly
}

// BodyBytes converts a generic body parameter to a byte slice.
//
// The body parameter may be nil, or it may be a string, []byte,
// io.Reader, or io.ReadCloser. The conversion logic is:
//
// • If body is nil, a nil byte slice and no error is returned.
//
// • If body is a []byte, body itself and no error is returned.
//
// • If body is a string, the built-in conversion from string to byte
// slice, and no error, is returned.
//
// • If body is an io.Reader or io.ReadCloser, the result of reading
// the whole contents of the reader (and closing it if it implements
// Closer) is returned. If reading from the reader (and closing it if
// applicable) causes an error, the return value is a nil byte slice
// and the error.
//
// • If body is any other type than those listed above, a nil byte slice
// and an error is returned.
func BodyBytes(body interface{}) ([]byte, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case io.ReadCloser:
		b, err := io.ReadAll(x)
		if err != nil {
			return nil, err
		}
		err = x.Close()
		if err != nil {
			return nil, err
		}
		return b, nil
	case io.Reader:
		return BodyBytes(io.NopCloser(x))
	default:
		return nil, errors.New(badBodyTypeMsg)
	}
}
