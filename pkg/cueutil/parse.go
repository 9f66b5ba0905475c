// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// DefaultMaxFileSize bounds the input accepted by ParseAndDecode.
const DefaultMaxFileSize int64 = 5 << 20

type (
	// ParseResult contains the result of a successful CUE parse operation.
	ParseResult[T any] struct {
		// Value is the decoded Go struct.
		Value *T

		// Unified is the unified CUE value, for callers that need fields the
		// struct does not carry.
		Unified cue.Value
	}

	// Option configures parsing.
	Option func(*options)

	options struct {
		filename    string
		maxFileSize int64
		concrete    bool
	}
)

func defaultOptions() options {
	return options{
		filename:    "<input>",
		maxFileSize: DefaultMaxFileSize,
		concrete:    true,
	}
}

// WithFilename sets the file name used in error messages.
func WithFilename(name string) Option {
	return func(o *options) {
		if name != "" {
			o.filename = name
		}
	}
}

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(o *options) { o.maxFileSize = n }
}

// WithConcrete controls whether every field must resolve to a concrete value.
// Config files disable it so that omitted keys keep their viper defaults.
func WithConcrete(concrete bool) Option {
	return func(o *options) { o.concrete = concrete }
}

// ParseAndDecode compiles data as CUE, unifies it with schemaPath inside schema,
// validates and decodes the result into T.
func ParseAndDecode[T any](schema, data []byte, schemaPath string, opts ...Option) (*ParseResult[T], error) {
	o := applyOptions(opts)

	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	userValue := ctx.CompileBytes(data, cue.Filename(o.filename))
	if userValue.Err() != nil {
		return nil, FormatError(userValue.Err(), o.filename)
	}

	return unifyAndDecode[T](ctx, schema, schemaPath, userValue, o)
}

// EncodeAndDecode encodes a Go value (typically a map decoded from YAML or TOML)
// into CUE and runs it through the same schema flow as ParseAndDecode.
func EncodeAndDecode[T any](schema []byte, data any, schemaPath string, opts ...Option) (*ParseResult[T], error) {
	o := applyOptions(opts)

	ctx := cuecontext.New()
	userValue := ctx.Encode(data)
	if userValue.Err() != nil {
		return nil, FormatError(userValue.Err(), o.filename)
	}

	return unifyAndDecode[T](ctx, schema, schemaPath, userValue, o)
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func unifyAndDecode[T any](ctx *cue.Context, schema []byte, schemaPath string, userValue cue.Value, o options) (*ParseResult[T], error) {
	schemaValue := ctx.CompileBytes(schema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}

	schemaRoot := schemaValue.LookupPath(cue.ParsePath(schemaPath))
	if schemaRoot.Err() != nil {
		return nil, fmt.Errorf("internal error: schema definition %s not found: %w", schemaPath, schemaRoot.Err())
	}

	unified := schemaRoot.Unify(userValue)

	if err := unified.Validate(cue.Concrete(o.concrete)); err != nil {
		return nil, FormatError(err, o.filename)
	}

	var result T
	if err := unified.Decode(&result); err != nil {
		return nil, FormatError(err, o.filename)
	}

	return &ParseResult[T]{
		Value:   &result,
		Unified: unified,
	}, nil
}
