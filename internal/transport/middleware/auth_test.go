package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/middleware"
)

func TestMiddleware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Middleware Suite")
}

var _ = Describe("ServiceAuth", func() {
	const secret = "test-secret-key-at-least-32-characters"

	var (
		authed  http.Handler
		seenSub string
	)

	signToken := func(secret string, expiresAt time.Time) string {
		claims := jwt.RegisteredClaims{
			Subject:   "discord-bot",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(secret))
		Expect(err).NotTo(HaveOccurred())
		return signed
	}

	request := func(authHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/intents/PAY-1", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rec := httptest.NewRecorder()
		authed.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		seenSub = ""
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenSub = internal.ServiceFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})
		authed = middleware.ServiceAuth(secret, log)(next)
	})

	It("should pass a valid token and expose the service name", func() {
		rec := request("Bearer " + signToken(secret, time.Now().Add(time.Hour)))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(seenSub).To(Equal("discord-bot"))
	})

	It("should reject a missing Authorization header", func() {
		rec := request("")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should reject a non-bearer header", func() {
		rec := request("Basic abc123")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should reject a token signed with the wrong secret", func() {
		rec := request("Bearer " + signToken("another-secret-key-32-characters-xx", time.Now().Add(time.Hour)))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should reject an expired token", func() {
		rec := request("Bearer " + signToken(secret, time.Now().Add(-time.Hour)))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
