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
package server

import (
	"fmt"
	"time"

	"dyncheckd.dev/server/internal/logging"
	"dyncheckd.dev/server/metrics"
)

// Process is the Dispatcher's single entry point: exactly one request is
// processed at a time, mutating s in place and emitting at most one
// response. Flushing deferred work is the one place Process recurses.
func (s *ServerState) Process(req Request) (Response, error) {
	started := time.Now()
	defer metrics.ObserveRequest(requestKind(req), started)

	switch r := req.(type) {
	case TypeCheckRequest:
		s.compactIfNeeded()
		return s.recheck(r.UpdateEnvironmentWith, r.Check), nil

	case TypeQueryRequest:
		return TypeQueryResponse{Text: s.handleTypeQuery(r.Query)}, nil

	case DisplayTypeErrorsRequest:
		return s.displayTypeErrors(r.Files), nil

	case FlushTypeErrorsRequest:
		return s.flushDeferred(), nil

	case StopRequest:
		return StopResponse{}, nil

	case LanguageServerProtocolRequest:
		return s.dispatchLSP(r.RawJSON)

	case ClientShutdownRequest:
		return lspShutdownResponse(r.ID), nil

	case ClientExitRequest:
		logging.Info("client exit: %v", r.Client)
		s.RemovePersistentClient(r.Client)
		return ClientExitResponse{Client: r.Client}, nil

	case RageRequest:
		return lspRageResponse(r.ID), nil

	case GetDefinitionRequest, HoverRequest, OpenDocumentRequest, CloseDocumentRequest, SaveDocumentRequest:
		logging.Warning("received %T outside a LanguageServerProtocolRequest envelope, dropping", req)
		return nil, nil

	case ClientConnectionRequest:
		return nil, &InvalidRequestError{Request: req}

	default:
		logging.Warning("unrecognized request %T, dropping", req)
		return nil, nil
	}
}

func requestKind(req Request) string {
	switch req.(type) {
	case TypeCheckRequest:
		return "type_check"
	case TypeQueryRequest:
		return "type_query"
	case DisplayTypeErrorsRequest:
		return "display_type_errors"
	case FlushTypeErrorsRequest:
		return "flush_type_errors"
	case StopRequest:
		return "stop"
	case LanguageServerProtocolRequest:
		return "lsp"
	case ClientShutdownRequest:
		return "client_shutdown"
	case ClientExitRequest:
		return "client_exit"
	case RageRequest:
		return "rage"
	case GetDefinitionRequest:
		return "get_definition"
	case HoverRequest:
		return "hover"
	case OpenDocumentRequest:
		return "open_document"
	case CloseDocumentRequest:
		return "close_document"
	case SaveDocumentRequest:
		return "save_document"
	case ClientConnectionRequest:
		return "client_connection"
	default:
		return fmt.Sprintf("%T", req)
	}
}
