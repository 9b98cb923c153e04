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
	"fmt"
)

// wireEnvelope is the on-the-wire shape for both Request and Response: a
// "kind" discriminator plus a kind-specific payload, so a length-framed
// transport only needs json.Marshal/Unmarshal and never a type switch of
// its own.
type wireEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeRequest turns one length-framed message body into a Request. It is
// the transport-facing half of request decoding the Dispatcher consumes;
// framing itself (how message boundaries are found on the socket) is the
// transport package's job.
func DecodeRequest(raw []byte) (Request, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode request envelope: %w", err)
	}
	switch env.Kind {
	case "typeCheck":
		var r TypeCheckRequest
		if err := unmarshalPayload(env.Payload, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "typeQuery":
		var body struct {
			Query   string          `json:"query"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := unmarshalPayload(env.Payload, &body); err != nil {
			return nil, err
		}
		q, err := decodeTypeQuery(body.Query, body.Payload)
		if err != nil {
			return nil, err
		}
		return TypeQueryRequest{Query: q}, nil
	case "displayTypeErrors":
		var r DisplayTypeErrorsRequest
		if err := unmarshalPayload(env.Payload, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "flushTypeErrors":
		return FlushTypeErrorsRequest{}, nil
	case "stop":
		return StopRequest{}, nil
	case "lsp":
		var body struct {
			RawJSON json.RawMessage `json:"rawJson"`
		}
		if err := unmarshalPayload(env.Payload, &body); err != nil {
			return nil, err
		}
		return LanguageServerProtocolRequest{RawJSON: body.RawJSON}, nil
	case "clientConnection":
		return ClientConnectionRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown request kind %q", env.Kind)
	}
}

func decodeTypeQuery(kind string, payload json.RawMessage) (TypeQuery, error) {
	switch kind {
	case "attributes":
		var q AttributesQuery
		return q, unmarshalPayload(payload, &q)
	case "methods":
		var q MethodsQuery
		return q, unmarshalPayload(payload, &q)
	case "superclasses":
		var q SuperclassesQuery
		return q, unmarshalPayload(payload, &q)
	case "join":
		var q JoinQuery
		return q, unmarshalPayload(payload, &q)
	case "meet":
		var q MeetQuery
		return q, unmarshalPayload(payload, &q)
	case "lessOrEqual":
		var q LessOrEqualQuery
		return q, unmarshalPayload(payload, &q)
	case "normalizeType":
		var q NormalizeTypeQuery
		return q, unmarshalPayload(payload, &q)
	case "typeAtLocation":
		var q TypeAtLocationQuery
		return q, unmarshalPayload(payload, &q)
	default:
		return nil, fmt.Errorf("unknown type query kind %q", kind)
	}
}

func unmarshalPayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// EncodeResponse is the transport-facing half of response encoding: one
// framed message body per Response.
func EncodeResponse(resp Response) ([]byte, error) {
	var env wireEnvelope
	switch r := resp.(type) {
	case TypeCheckResponse:
		errs := make(map[string][]errorWire, len(r.Errors))
		for handle, list := range r.Errors {
			wire := make([]errorWire, len(list))
			for i, e := range list {
				wire[i] = errorWire{Path: e.Path, Message: e.Message, Line: e.Line, Col: e.Col}
			}
			errs[string(handle)] = wire
		}
		env.Kind = "typeCheck"
		env.Payload, _ = json.Marshal(struct {
			Errors map[string][]errorWire `json:"errors"`
		}{Errors: errs})
	case TypeQueryResponse:
		env.Kind = "typeQuery"
		env.Payload, _ = json.Marshal(r)
	case ClientExitResponse:
		env.Kind = "clientExit"
		env.Payload, _ = json.Marshal(r)
	case StopResponse:
		env.Kind = "stop"
	case LanguageServerProtocolResponse:
		env.Kind = "lsp"
		env.Payload, _ = json.Marshal(r)
	default:
		return nil, fmt.Errorf("unencodable response type %T", resp)
	}
	return json.Marshal(env)
}

type errorWire struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
}
