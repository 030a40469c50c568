package api

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/rsamf/mink/internal/errors"
)

//go:embed openapi.yaml
var openAPIYAML []byte

const swaggerPage = `<!DOCTYPE html>
<html>
<head>
<title>mink - Swagger UI</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({url: %q, dom_id: "#swagger-ui"});
</script>
</body>
</html>`

const redocPage = `<!DOCTYPE html>
<html>
<head>
<title>mink - ReDoc</title>
<meta charset="utf-8">
</head>
<body>
<redoc spec-url=%q></redoc>
<script src="https://cdn.jsdelivr.net/npm/redoc@2/bundles/redoc.standalone.js"></script>
</body>
</html>`

// loadOpenAPI decodes the embedded document, stamping the build version.
func loadOpenAPI(version string) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("document", "openapi.yaml").
			Build()
	}
	if info, ok := doc["info"].(map[string]any); ok {
		info["version"] = version
	}
	return doc, nil
}

// registerDocs serves /openapi.json, /docs and /redoc.
func (s *Server) registerDocs() error {
	doc, err := loadOpenAPI(s.build.Version())
	if err != nil {
		return err
	}

	s.echo.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, doc)
	})
	s.echo.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, fmt.Sprintf(swaggerPage, "/openapi.json"))
	})
	s.echo.GET("/redoc", func(c echo.Context) error {
		return c.HTML(http.StatusOK, fmt.Sprintf(redocPage, "/openapi.json"))
	})
	return nil
}
