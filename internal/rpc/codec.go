// Package rpc implements the cache-invalidation service described in
// SPEC_FULL.md §12.5. The operator API (out of scope) calls this after
// writing a VoiceAgent/AgentGroup/InboundRule/OutboundRule/Trunk row, so the
// routing engine's in-process read cache (internal/routing.CachedRepository)
// doesn't serve stale configuration for up to its TTL.
//
// No protoc/buf codegen step was run for this package (see DESIGN.md): the
// request/response types are hand-written structs, and the codec registered
// below overrides grpc-go's "proto" content-subtype with a JSON codec so
// google.golang.org/grpc's transport, service registration, and dispatch
// machinery still do real work without a generated .pb.go pair.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
