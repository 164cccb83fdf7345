package auth

import (
	"context"
	"testing"
)

// ─── Password hashing (Argon2id, slow on purpose) ───────────────

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HashPassword("correct-horse-battery-staple") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifyPassword("correct-horse-battery-staple", hash) //nolint:errcheck // benchmark
	}
}

// ─── Per-request hot path ───────────────────────────────────────────

func BenchmarkIssueToken(b *testing.B) {
	svc, err := NewTokenService(TokenPolicy{Secret: []byte("benchmark-secret-key-32-bytes-xx")})
	if err != nil {
		b.Fatalf("NewTokenService: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.Issue("acc-bench", UserTypeEmployee, PlatformWeb) //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyToken(b *testing.B) {
	svc, err := NewTokenService(TokenPolicy{Secret: []byte("benchmark-secret-key-32-bytes-xx")})
	if err != nil {
		b.Fatalf("NewTokenService: %v", err)
	}
	issued, err := svc.Issue("acc-bench", UserTypeEmployee, PlatformWeb)
	if err != nil {
		b.Fatalf("Issue: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.Verify(issued.Token) //nolint:errcheck // benchmark
	}
}

func BenchmarkNormalizeRoute(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NormalizeRoute("/api/v1/users/{id}/roles/")
	}
}

func BenchmarkAuthorize(b *testing.B) {
	tokens, err := NewTokenService(TokenPolicy{Secret: []byte("benchmark-secret-key-32-bytes-xx")})
	if err != nil {
		b.Fatalf("NewTokenService: %v", err)
	}
	issued, err := tokens.Issue("acc-bench", UserTypeSuperAdmin, PlatformWeb)
	if err != nil {
		b.Fatalf("Issue: %v", err)
	}

	authz := NewAuthorizer(tokens,
		staticPermissions{KeyFor("/api/v1/users/list", MethodPost): {"SUPER_ADMIN"}},
		staticRoles{"acc-bench": {"SUPER_ADMIN"}},
		AccessTable{PlatformWeb: {UserTypeSuperAdmin}},
		nil,
	)
	req := Request{
		Token:  issued.Token,
		Route:  "/api/v1/users/list",
		Method: MethodPost,
		Guard:  Guard{Platform: PlatformWeb, CheckRoles: true},
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		authz.Authorize(ctx, req) //nolint:errcheck // benchmark
	}
}
