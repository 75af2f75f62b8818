package validator

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var document []byte

// Document returns the embedded OpenAPI document
func Document() []byte {
	return document
}

// OpenAPIValidator validates requests against an OpenAPI document
type OpenAPIValidator struct {
	swagger *openapi3.T
	router  routers.Router
}

// NewOpenAPIValidator builds a validator for the embedded document
func NewOpenAPIValidator() (*OpenAPIValidator, error) {
	return NewOpenAPIValidatorFromData(document)
}

// NewOpenAPIValidatorFromData builds a validator for the given document
func NewOpenAPIValidatorFromData(data []byte) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema: %w", err)
	}
	if err := swagger.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{
		swagger: swagger,
		router:  router,
	}, nil
}

// Middleware rejects requests that do not match the document. Routes the
// document does not describe pass through.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		requestValidationInput := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), requestValidationInput); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		c.Next()
	}
}
