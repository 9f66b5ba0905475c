// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides shared CUE parsing utilities.
//
// Service files and the application config go through the same flow:
//
//  1. Compile the embedded schema
//  2. Compile (or encode) the user data and unify it with the schema root
//  3. Validate and decode to a Go struct
//
// # Usage
//
//	//go:embed schema.cue
//	var schemaBytes []byte
//
//	result, err := cueutil.ParseAndDecode[File](
//	    schemaBytes,
//	    userFileBytes,
//	    "#File",
//	    cueutil.WithFilename("services.cue"),
//	)
//	if err != nil {
//	    return nil, err  // *ValidationError with JSON paths
//	}
//	return result.Value, nil
//
// Data that arrives in another format (YAML, TOML) is decoded to a map first and
// handed to EncodeAndDecode, so every format gets identical validation messages.
package cueutil
