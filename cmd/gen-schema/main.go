// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Command gen-schema writes the JSON Schema of config.yaml.
//
//	gen-schema [-check] [PATH]
//
// PATH defaults to schemas/config.schema.json. With -check the file is not
// written; the command fails if it differs from the generated schema.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/memberauth/memberauth/internal/config"
)

const defaultSchemaPath = "schemas/config.schema.json"

func main() {
	check := flag.Bool("check", false, "fail if the schema file is stale instead of writing it")
	flag.Parse()

	if err := run(os.Stdout, flag.Arg(0), *check); err != nil {
		fmt.Fprintf(os.Stderr, "gen-schema: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, path string, check bool) error {
	if path == "" {
		path = filepath.FromSlash(defaultSchemaPath)
	}
	schema, err := config.GenerateSchema()
	if err != nil {
		return err //nolint:wrapcheck // config errors carry their own codes
	}

	if check {
		current, err := os.ReadFile(path) //nolint:gosec // path is a CLI argument
		if err != nil {
			return oops.Code("SCHEMA_READ_FAILED").With("path", path).Wrap(err)
		}
		if !bytes.Equal(current, schema) {
			return oops.Code("SCHEMA_STALE").With("path", path).Errorf("%s is out of date; run gen-schema", path)
		}
		_, _ = fmt.Fprintf(out, "%s is up to date\n", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err := os.WriteFile(path, schema, 0o600); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("path", path).Wrap(err)
	}
	_, _ = fmt.Fprintf(out, "Generated %s\n", path)
	return nil
}
