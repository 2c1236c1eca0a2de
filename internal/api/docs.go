package api

import (
    _ "embed"
    "encoding/json"
    "net/http"

    yaml "gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPIHandler serves the OpenAPI document; ?format=json converts it.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Query().Get("format") != "json" {
        w.Header().Set("Content-Type", "application/yaml")
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write(openAPISpec)
        return
    }
    var obj map[string]any
    if err := yaml.Unmarshal(openAPISpec, &obj); err != nil { writeProblem(w, 500, "OpenAPI parse failed", err.Error(), r.URL.Path); return }
    js, err := json.Marshal(obj)
    if err != nil { writeProblem(w, 500, "OpenAPI encode failed", err.Error(), r.URL.Path); return }
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(js)
}

// DocsHandler serves a minimal ReDoc page referencing /openapi.yaml
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(200)
    _, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>Route Editor API</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
    </head><body>
    <redoc spec-url="/openapi.yaml"></redoc>
    </body></html>`))
}
