package middleware

import (
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func TestMutationRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(OwnerLocal, c.Get("X-Test-Owner"))
		return c.Next()
	})
	app.Use(MutationRateLimit(cache, 2))
	app.All("/op", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	do := func(method, owner string) int {
		req := httptest.NewRequest(method, "/op", nil)
		req.Header.Set("X-Test-Owner", owner)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := do(fiber.MethodPost, "alice"); got != fiber.StatusNoContent {
			t.Fatalf("request %d: expected 204 got %d", i, got)
		}
	}
	if got := do(fiber.MethodPost, "alice"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
	if got := do(fiber.MethodGet, "alice"); got != fiber.StatusNoContent {
		t.Fatalf("reads are not limited, got %d", got)
	}
	if got := do(fiber.MethodPost, "bob"); got != fiber.StatusNoContent {
		t.Fatalf("other owners are not limited, got %d", got)
	}
	if ttl := mr.TTL("rl:mutations:alice"); ttl <= 0 {
		t.Fatalf("expected the window to expire, ttl=%s", ttl)
	}
}

func TestMutationRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Use(MutationRateLimit(nil, 1))
	app.Post("/op", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/op", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("expected pass-through, got %d", resp.StatusCode)
		}
	}
}
