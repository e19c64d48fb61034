package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/pockets/internal/auth"
)

func TestOwnerAuth(t *testing.T) {
	secret := []byte("test-secret")
	app := fiber.New()
	app.Use(OwnerAuth(secret))
	app.Get("/whoami", func(c *fiber.Ctx) error { return c.SendString(Owner(c)) })

	token, err := auth.SignOwnerToken("alice", secret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, err := auth.SignOwnerToken("alice", secret, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, fiber.StatusUnauthorized},
		{"expired", "Bearer " + expired, fiber.StatusUnauthorized},
		{"garbage", "Bearer abc", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.StatusCode)
			}
			if tc.status == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != "alice" {
					t.Fatalf("unexpected owner %q", body)
				}
			}
		})
	}
}
