// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2023 The Falco Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bridge

import (
	"strings"
)

// Kind categorizes a bridge error
type Kind string

const (
	KindAcquisition  Kind = "acquisition"   // array view unobtainable
	KindDecode       Kind = "decode"        // malformed text
	KindAllocation   Kind = "allocation"    // managed or native allocation failure
	KindPin          Kind = "pin"           // invalid or released callback reference
	KindInvocation   Kind = "invocation"    // managed callback raised during call
	KindInvalidToken Kind = "invalid_token" // token does not name a live handle
	KindAttach       Kind = "attach"        // thread could not be attached to the runtime
	KindConfig       Kind = "config"        // invalid init configuration
	KindClosed       Kind = "closed"        // bridge already closed
)

// Error is the structured error type returned by all the bridge operations.
type Error struct {
	Cause  error
	Op     string
	Kind   Kind
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a bridge error of the same kind
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels to be used with errors.Is.
var (
	ErrAcquisition  = &Error{Kind: KindAcquisition}
	ErrDecode       = &Error{Kind: KindDecode}
	ErrAllocation   = &Error{Kind: KindAllocation}
	ErrPin          = &Error{Kind: KindPin}
	ErrInvocation   = &Error{Kind: KindInvocation}
	ErrInvalidToken = &Error{Kind: KindInvalidToken}
	ErrAttach       = &Error{Kind: KindAttach}
	ErrConfig       = &Error{Kind: KindConfig}
	ErrClosed       = &Error{Kind: KindClosed}
)

func newError(op string, kind Kind, detail string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Detail: detail, Cause: cause}
}

// withOp returns err with its Op set, if err is a bridge error without one.
func withOp(op string, err error) error {
	if e, ok := err.(*Error); ok && e.Op == "" {
		c := *e
		c.Op = op
		return &c
	}
	return err
}
