package redisstore

import (
	"context"
	"fmt"

	"tinyolly/internal/codec"
	"tinyolly/internal/core/domain/telemetry"
)

func refField(ref uint64) string { return fmt.Sprintf("%016x", ref) }

func (s *Store) InternResource(ctx context.Context, hash uint64, res telemetry.Resource) (telemetry.ResourceRef, error) {
	ref := telemetry.ResourceRef(hash)
	// HSetNX only writes if the field is absent, giving content-addressed
	// interning without a read-then-write race.
	if err := s.rdb.HSetNX(ctx, keyResources, refField(hash), codec.EncodeResource(&res)).Err(); err != nil {
		return 0, fmt.Errorf("redisstore: intern resource: %w", err)
	}
	return ref, nil
}

func (s *Store) InternScope(ctx context.Context, hash uint64, scope telemetry.Scope) (telemetry.ScopeRef, error) {
	ref := telemetry.ScopeRef(hash)
	if err := s.rdb.HSetNX(ctx, keyScopes, refField(hash), codec.EncodeScope(&scope)).Err(); err != nil {
		return 0, fmt.Errorf("redisstore: intern scope: %w", err)
	}
	return ref, nil
}

func (s *Store) ResolveResource(ctx context.Context, ref telemetry.ResourceRef) (telemetry.Resource, bool) {
	raw, err := s.rdb.HGet(ctx, keyResources, refField(uint64(ref))).Bytes()
	if err != nil {
		return telemetry.Resource{}, false
	}
	res, err := codec.DecodeResource(raw)
	if err != nil {
		s.logger.Warn("redisstore: corrupt interned resource", "error", err)
		return telemetry.Resource{}, false
	}
	return *res, true
}

func (s *Store) ResolveScope(ctx context.Context, ref telemetry.ScopeRef) (telemetry.Scope, bool) {
	raw, err := s.rdb.HGet(ctx, keyScopes, refField(uint64(ref))).Bytes()
	if err != nil {
		return telemetry.Scope{}, false
	}
	scope, err := codec.DecodeScope(raw)
	if err != nil {
		s.logger.Warn("redisstore: corrupt interned scope", "error", err)
		return telemetry.Scope{}, false
	}
	return *scope, true
}
