// Package api documents the RenderFlow HTTP API. The handlers live in
// api/handlers; routes are registered by cmd/renderflow.
//
// # API Overview
//
// RenderFlow provides a small HTTP API for:
//   - Image generation: POST /api/generate (multipart: image, prompt,
//     negativePrompt, model, settings)
//   - Prompt refinement: POST /api/refine (JSON)
//   - Workspace settings: GET and PUT /api/workspace,
//     POST /api/workspace/seed, POST /api/workspace/clear
//   - Health monitoring: /health, /healthz, /ready, /version
//
// Prometheus metrics are served by a separate listener on /metrics.
//
// # Errors
//
// Every failure is answered with a JSON body:
//
//	{"error": "...", "code": "UPSTREAM_ERROR", "kind": "upstream",
//	 "upstream_status": 500, "upstream_body": "..."}
//
// Validation failures use 400, upstream and normalisation failures 502,
// cancelled requests 499, everything else 500.
//
// # Authentication
//
// When server.api_keys is configured, /api routes require the X-API-Key
// header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// The swag annotations on cmd/renderflow/main.go and the handlers can be
// rendered with:
//
//	swag init -g cmd/renderflow/main.go -o api --parseDependency --parseInternal
package api
