/*
Copyright © 2025 dyncheckd contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package server implements the Request Dispatcher, the Recheck Engine,
// the Type-Query Handler, and the LSP Inner Dispatcher: the only entry
// point into every other component.
package server

import (
	"dyncheckd.dev/server/queries"
	"dyncheckd.dev/server/sourcefile"
	"dyncheckd.dev/server/typecheck"
)

// Request is the closed set of things the Dispatcher can be asked to do.
type Request interface{ isRequest() }

// ClientKind distinguishes the always-connected editor client from a
// one-shot batch client for ClientExitRequest/ClientExitResponse.
type ClientKind int

const (
	ClientPersistent ClientKind = iota
	ClientOneShot
)

type TypeCheckRequest struct {
	UpdateEnvironmentWith []string
	Check                 []string
}

func (TypeCheckRequest) isRequest() {}

type TypeQueryRequest struct{ Query TypeQuery }

func (TypeQueryRequest) isRequest() {}

type DisplayTypeErrorsRequest struct{ Files []string }

func (DisplayTypeErrorsRequest) isRequest() {}

type FlushTypeErrorsRequest struct{}

func (FlushTypeErrorsRequest) isRequest() {}

type StopRequest struct{}

func (StopRequest) isRequest() {}

type LanguageServerProtocolRequest struct{ RawJSON []byte }

func (LanguageServerProtocolRequest) isRequest() {}

type ClientShutdownRequest struct{ ID any }

func (ClientShutdownRequest) isRequest() {}

type ClientExitRequest struct{ Client ClientKind }

func (ClientExitRequest) isRequest() {}

type RageRequest struct{ ID any }

func (RageRequest) isRequest() {}

type GetDefinitionRequest struct {
	ID   any
	File string
	Pos  queries.Position
}

func (GetDefinitionRequest) isRequest() {}

type HoverRequest struct {
	ID   any
	File string
	Pos  queries.Position
}

func (HoverRequest) isRequest() {}

type OpenDocumentRequest struct{ File string }

func (OpenDocumentRequest) isRequest() {}

type CloseDocumentRequest struct{ File string }

func (CloseDocumentRequest) isRequest() {}

type SaveDocumentRequest struct{ File string }

func (SaveDocumentRequest) isRequest() {}

// ClientConnectionRequest only ever arrives inside a transport accept loop;
// seeing it at the Dispatcher is a programming error.
type ClientConnectionRequest struct{}

func (ClientConnectionRequest) isRequest() {}

// TypeQuery is the closed set of TypeQueryRequest payloads.
type TypeQuery interface{ isTypeQuery() }

type AttributesQuery struct{ Type string }

func (AttributesQuery) isTypeQuery() {}

type MethodsQuery struct{ Type string }

func (MethodsQuery) isTypeQuery() {}

type SuperclassesQuery struct{ Type string }

func (SuperclassesQuery) isTypeQuery() {}

type JoinQuery struct{ A, B string }

func (JoinQuery) isTypeQuery() {}

type MeetQuery struct{ A, B string }

func (MeetQuery) isTypeQuery() {}

type LessOrEqualQuery struct{ A, B string }

func (LessOrEqualQuery) isTypeQuery() {}

type NormalizeTypeQuery struct{ Expr string }

func (NormalizeTypeQuery) isTypeQuery() {}

type TypeAtLocationQuery struct {
	Path string
	Line int
	Col  int
}

func (TypeAtLocationQuery) isTypeQuery() {}

// Response is the closed set of things the Dispatcher can emit.
type Response interface{ isResponse() }

type TypeCheckResponse struct {
	Errors map[sourcefile.FileHandle][]typecheck.Error
}

func (TypeCheckResponse) isResponse() {}

type TypeQueryResponse struct{ Text string }

func (TypeQueryResponse) isResponse() {}

type ClientExitResponse struct{ Client ClientKind }

func (ClientExitResponse) isResponse() {}

type StopResponse struct{}

func (StopResponse) isResponse() {}

type LanguageServerProtocolResponse struct{ JSON string }

func (LanguageServerProtocolResponse) isResponse() {}

// InvalidRequestError is the one Dispatcher fault that is not recovered
// locally: a request variant arrived at a layer that cannot service it.
type InvalidRequestError struct {
	Request Request
}

func (e *InvalidRequestError) Error() string {
	return "invalid request at this dispatch layer"
}
