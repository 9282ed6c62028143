package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

const (
	testSessionSecret  = "session-secret"
	testIdentitySecret = "identity-secret"
)

func newIdentityFixture() (*IdentityService, *stubUserRepo) {
	repo := newStubUserRepo()
	return NewIdentityService(repo, testSessionSecret, testIdentitySecret, time.Hour, zerolog.Nop()), repo
}

func signAssertion(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign assertion: %v", err)
	}
	return s
}

func validClaims(sub, handle string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":     sub,
		"handle":  handle,
		"name":    "Ana",
		"picture": "https://img.test/ana.png",
		"exp":     time.Now().Add(time.Minute).Unix(),
	}
}

func TestLogin_CreatesUserAndIssuesSession(t *testing.T) {
	svc, repo := newIdentityFixture()

	token, user, err := svc.Login(context.Background(), signAssertion(t, jwt.SigningMethodHS256, testIdentitySecret, validClaims("tw-1", "@ana")))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Handle != "ana" || user.DisplayName != "Ana" || user.ExternalID != "tw-1" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Status != domain.UserUnavailable || len(user.Plans) != 0 {
		t.Fatalf("new users start unavailable without plans, got %+v", user)
	}
	if len(repo.byID) != 1 {
		t.Fatalf("expected 1 stored user, got %d", len(repo.byID))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSessionSecret), nil
	}); err != nil {
		t.Fatalf("session token does not verify: %v", err)
	}
	if claims["sub"] != user.ID || claims["handle"] != "ana" {
		t.Fatalf("unexpected session claims %v", claims)
	}
}

func TestLogin_IsIdempotentOnExternalID(t *testing.T) {
	svc, repo := newIdentityFixture()
	ctx := context.Background()

	_, first, err := svc.Login(ctx, signAssertion(t, jwt.SigningMethodHS256, testIdentitySecret, validClaims("tw-1", "ana")))
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	_, second, err := svc.Login(ctx, signAssertion(t, jwt.SigningMethodHS256, testIdentitySecret, validClaims("tw-1", "ana_renamed")))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same user, got %s and %s", first.ID, second.ID)
	}
	if second.Handle != "ana_renamed" || len(repo.byID) != 1 {
		t.Fatalf("expected refreshed handle on one user, got %+v", second)
	}
}

func TestLogin_RejectsBadAssertions(t *testing.T) {
	expired := validClaims("tw-1", "ana")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noExp := validClaims("tw-1", "ana")
	delete(noExp, "exp")

	tests := []struct {
		name      string
		assertion func(t *testing.T) string
	}{
		{"empty", func(*testing.T) string { return "" }},
		{"garbage", func(*testing.T) string { return "not-a-jwt" }},
		{"wrong secret", func(t *testing.T) string {
			return signAssertion(t, jwt.SigningMethodHS256, testSessionSecret, validClaims("tw-1", "ana"))
		}},
		{"wrong algorithm", func(t *testing.T) string {
			return signAssertion(t, jwt.SigningMethodHS512, testIdentitySecret, validClaims("tw-1", "ana"))
		}},
		{"expired", func(t *testing.T) string {
			return signAssertion(t, jwt.SigningMethodHS256, testIdentitySecret, expired)
		}},
		{"no expiry", func(t *testing.T) string {
			return signAssertion(t, jwt.SigningMethodHS256, testIdentitySecret, noExp)
		}},
		{"no handle", func(t *testing.T) string {
			return signAssertion(t, jwt.SigningMethodHS256, testIdentitySecret, validClaims("tw-1", ""))
		}},
		{"no subject", func(t *testing.T) string {
			return signAssertion(t, jwt.SigningMethodHS256, testIdentitySecret, validClaims("", "ana"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newIdentityFixture()
			_, _, err := svc.Login(context.Background(), tt.assertion(t))
			if !errors.Is(err, domain.ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
			if len(repo.byID) != 0 {
				t.Fatal("no user should be created")
			}
		})
	}
}

func TestResolveOrCreate_HandleTaken(t *testing.T) {
	svc, _ := newIdentityFixture()
	ctx := context.Background()

	if _, err := svc.ResolveOrCreate(ctx, ports.ExternalIdentity{ExternalID: "tw-1", Handle: "Ana"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := svc.ResolveOrCreate(ctx, ports.ExternalIdentity{ExternalID: "tw-2", Handle: "ana"})
	if !errors.Is(err, domain.ErrHandleTaken) {
		t.Fatalf("expected ErrHandleTaken, got %v", err)
	}
}

func TestResolveOrCreate_DisplayNameDefaultsToHandle(t *testing.T) {
	svc, _ := newIdentityFixture()
	u, err := svc.ResolveOrCreate(context.Background(), ports.ExternalIdentity{ExternalID: "tw-1", Handle: "ana"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if u.DisplayName != "ana" {
		t.Fatalf("expected handle as display name, got %q", u.DisplayName)
	}
}

func TestLogin_StoreFailure(t *testing.T) {
	svc, repo := newIdentityFixture()
	boom := errors.New("db down")
	repo.upsertFn = func(*domain.User) (*domain.User, error) { return nil, boom }

	_, _, err := svc.Login(context.Background(), signAssertion(t, jwt.SigningMethodHS256, testIdentitySecret, validClaims("tw-1", "ana")))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
