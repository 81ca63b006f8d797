// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ghodss/yaml"
)

// textWriter is implemented by command results that have a plain
// text rendering.
type textWriter interface {
	writeText(w io.Writer) error
}

func writeOutput(w io.Writer, format string, obj textWriter) error {
	var err error
	switch format {
	case "yaml":
		var buf []byte
		buf, err = yaml.Marshal(obj)
		if err == nil {
			_, err = w.Write(buf)
		}
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(obj)
	default:
		err = obj.writeText(w)
	}
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	return nil
}
