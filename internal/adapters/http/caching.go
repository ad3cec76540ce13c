package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// cacheRule assigns a Cache-Control value to GET paths matching prefix
// (or exactly equal to it when exact is set). First match wins.
type cacheRule struct {
	prefix string
	exact  bool
	value  string
}

var cacheRules = []cacheRule{
	{prefix: "/v1/health", exact: true, value: "public, max-age=10"},
	{prefix: "/v1/ready", exact: true, value: "public, max-age=10"},
	{prefix: "/metrics", exact: true, value: "no-cache"},
	{prefix: "/docs", value: "public, max-age=3600"},
	// scenes change on every render and toggle; clients revalidate via ETag
	{prefix: "/v1/scenes/", value: "private, no-cache"},
	{prefix: "/v1/", value: "private, max-age=0"},
}

// cachePolicy returns the Cache-Control value for a GET path, or "".
func cachePolicy(path string) string {
	for _, r := range cacheRules {
		if r.exact && path == r.prefix || !r.exact && strings.HasPrefix(path, r.prefix) {
			return r.value
		}
	}
	return ""
}

// CachingMiddleware sets Cache-Control on GET responses that the handler
// left without one.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}
		if v := cachePolicy(c.Path()); v != "" {
			c.Set(fiber.HeaderCacheControl, v)
		}
		return err
	}
}
