// Package api embeds the OpenAPI specification so the daemon can serve its
// own API description.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.1 YAML document for the admin surface.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
