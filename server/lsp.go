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
	"encoding/json"

	"github.com/tidwall/gjson"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"dyncheckd.dev/server/internal/logging"
	"dyncheckd.dev/server/queries"
)

// dispatchLSP implements the outer LanguageServerProtocolRequest branch of
// §4.1: parse raw JSON-RPC with the external LSP parser (gjson, deferring
// full structural decode to each inner method), map recognized methods to
// inner requests, and run them through the LSP Inner Dispatcher. An
// unrecognized method yields no response, per §4.1/§7.
func (s *ServerState) dispatchLSP(raw []byte) (Response, error) {
	parsed := gjson.ParseBytes(raw)
	method := parsed.Get("method").String()
	id := parsed.Get("id").Value()
	params := parsed.Get("params")

	inner, ok := decodeInnerRequest(method, id, params)
	if !ok {
		logging.Warning("unrecognized LSP method %q, dropping", method)
		return nil, nil
	}
	return s.dispatchInnerLSP(inner)
}

func decodeInnerRequest(method string, id any, params gjson.Result) (Request, bool) {
	uri := params.Get("textDocument.uri").String()
	pos := queries.Position{
		Line:      uint32(params.Get("position.line").Uint()),
		Character: uint32(params.Get("position.character").Uint()),
	}

	switch method {
	case "textDocument/definition":
		return GetDefinitionRequest{ID: id, File: uri, Pos: pos}, true
	case "textDocument/hover":
		return HoverRequest{ID: id, File: uri, Pos: pos}, true
	case "textDocument/didOpen":
		return OpenDocumentRequest{File: params.Get("textDocument.uri").String()}, true
	case "textDocument/didClose":
		return CloseDocumentRequest{File: uri}, true
	case "textDocument/didSave":
		return SaveDocumentRequest{File: uri}, true
	case "shutdown":
		return ClientShutdownRequest{ID: id}, true
	case "exit":
		return ClientExitRequest{Client: ClientPersistent}, true
	case "$/rage":
		return RageRequest{ID: id}, true
	case "$/typeCheck":
		var update, check []string
		for _, v := range params.Get("updateEnvironmentWith").Array() {
			update = append(update, v.String())
		}
		for _, v := range params.Get("check").Array() {
			check = append(check, v.String())
		}
		return TypeCheckRequest{UpdateEnvironmentWith: update, Check: check}, true
	default:
		return nil, false
	}
}

// dispatchInnerLSP implements the LSP Inner Dispatcher (§4.4).
func (s *ServerState) dispatchInnerLSP(req Request) (Response, error) {
	switch r := req.(type) {
	case TypeCheckRequest:
		resp := s.recheck(r.UpdateEnvironmentWith, r.Check)
		return lspTypeCheckResponse(resp)

	case ClientShutdownRequest:
		return lspShutdownResponse(r.ID), nil

	case ClientExitRequest:
		logging.Info("client exit: %v", ClientPersistent)
		s.RemovePersistentClient(ClientPersistent)
		return ClientExitResponse{Client: ClientPersistent}, nil

	case GetDefinitionRequest:
		rng, ok := s.Lookups.FindDefinition(r.File, r.Pos)
		return lspDefinitionResponse(r.ID, r.File, rng, ok)

	case HoverRequest:
		annotation, ok := s.Lookups.FindAnnotation(r.File, r.Pos)
		return lspHoverResponse(r.ID, annotation, ok)

	case RageRequest:
		return lspRageResponse(r.ID), nil

	case OpenDocumentRequest:
		s.Lookups.Evict(r.File)
		_, _ = s.Lookups.Get(r.File)
		return nil, nil

	case CloseDocumentRequest:
		s.Lookups.Evict(r.File)
		return nil, nil

	case SaveDocumentRequest:
		s.Lookups.Evict(r.File)
		if !s.CheckOnSave() {
			return nil, nil
		}
		resp := s.recheck([]string{r.File}, []string{r.File})
		return lspTypeCheckResponse(resp)

	default:
		logging.Warning("unrecognized inner LSP request %T, dropping", req)
		return nil, nil
	}
}

func lspEnvelope(v any) (Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return LanguageServerProtocolResponse{JSON: string(body)}, nil
}

func lspShutdownResponse(id any) Response {
	resp, _ := lspEnvelope(map[string]any{"id": id, "result": nil})
	return resp
}

func lspRageResponse(id any) Response {
	lines := logging.RageDump()
	resp, _ := lspEnvelope(map[string]any{"id": id, "result": map[string]any{"lines": lines}})
	return resp
}

func lspTypeCheckResponse(resp TypeCheckResponse) (Response, error) {
	payload := make(map[string]any, len(resp.Errors))
	for handle, errs := range resp.Errors {
		payload[handle.String()] = errs
	}
	return lspEnvelope(map[string]any{"method": "$/typeCheck", "params": payload})
}

func lspDefinitionResponse(id any, uri string, rng queries.Range, found bool) (Response, error) {
	if !found {
		resp, err := lspEnvelope(map[string]any{"id": id, "result": nil})
		return resp, err
	}
	location := protocol.Location{
		URI: uri,
		Range: protocol.Range{
			Start: protocol.Position{Line: rng.Start.Line, Character: rng.Start.Character},
			End:   protocol.Position{Line: rng.End.Line, Character: rng.End.Character},
		},
	}
	return lspEnvelope(map[string]any{"id": id, "result": location})
}

func lspHoverResponse(id any, annotation string, found bool) (Response, error) {
	if !found {
		resp, err := lspEnvelope(map[string]any{"id": id, "result": nil})
		return resp, err
	}
	hover := protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindPlainText,
			Value: annotation,
		},
	}
	return lspEnvelope(map[string]any{"id": id, "result": hover})
}
