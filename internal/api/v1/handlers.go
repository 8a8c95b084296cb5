package apiv1

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// Pong is the ping response.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer serves the versioned meta endpoints.
type APIServer struct {
	doc *openapi3.T
}

// NewAPIServer creates a new API server instance. doc may be nil when the
// document failed to load; the openapi endpoint then answers 503.
func NewAPIServer(doc *openapi3.T) *APIServer {
	return &APIServer{doc: doc}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetOpenAPI returns the OpenAPI document as JSON.
func (s *APIServer) GetOpenAPI(c *fiber.Ctx) error {
	if s.doc == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "API document unavailable"})
	}
	return c.JSON(s.doc)
}

// RegisterHandlers mounts the v1 endpoints on router.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)
	router.Get("/openapi.json", s.GetOpenAPI)
}
