package netgin_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	netgin "github.com/open-rails/netpass/adapters/gin"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/expiry"
	"github.com/open-rails/netpass/plan"
	memorystore "github.com/open-rails/netpass/storage/memory"
	netpasstest "github.com/open-rails/netpass/testing"
)

func newRouter(t *testing.T) (*gin.Engine, *netpasstest.Issuer) {
	t.Helper()
	ctx := context.Background()

	iss := netpasstest.NewIssuer("netpass-portal")
	t.Cleanup(iss.Close)

	store := memorystore.New()
	p := plan.Plan{ID: uuid.New(), Name: "Quick Browse", Duration: time.Hour, Price: 50, Active: true}
	if err := store.PutPlan(ctx, p); err != nil {
		t.Fatal(err)
	}

	svc, err := core.New(core.Config{
		Expiry: expiry.Config{PollFloor: 10 * time.Millisecond},
	}, core.Deps{Plans: store, Transactions: store, Grants: store, Gateway: netpasstest.NewScriptedGateway()})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)

	v, err := netgin.NewVerifier(ctx, netgin.AuthConfig{
		Issuer:   iss.URL(),
		Audience: iss.Audience(),
		JWKSURL:  iss.JWKSURL(),
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	netgin.Mount(r, svc, v, nil, netgin.RouterConfig{})
	return r, iss
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	r, iss := newRouter(t)

	if rec := get(r, "/api/v1/plans", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}
	if rec := get(r, "/api/v1/plans", "not-a-jwt"); rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d", rec.Code)
	}
	if rec := get(r, "/api/v1/plans", iss.ExpiredToken("user-1")); rec.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status = %d", rec.Code)
	}
	if rec := get(r, "/api/v1/plans", iss.Token("user-1", nil)); rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAuthRejectsWrongAudience(t *testing.T) {
	r, iss := newRouter(t)

	tok := iss.Token("user-1", map[string]any{"aud": "some-other-service"})
	if rec := get(r, "/api/v1/plans", tok); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong audience: status = %d", rec.Code)
	}
}

func TestAdminRequired(t *testing.T) {
	r, iss := newRouter(t)

	// A plain user token reaches user routes but not admin routes.
	if rec := get(r, "/api/v1/admin/sessions", iss.Token("user-1", nil)); rec.Code != http.StatusForbidden {
		t.Errorf("user token on admin route: status = %d", rec.Code)
	}
	// The wrong role is still not the admin role.
	wrong := iss.Token("user-1", map[string]any{"roles": []string{"support"}})
	if rec := get(r, "/api/v1/admin/sessions", wrong); rec.Code != http.StatusForbidden {
		t.Errorf("wrong role: status = %d", rec.Code)
	}
	admin := iss.AdminToken("admin-1", "netpass:admin")
	if rec := get(r, "/api/v1/admin/sessions", admin); rec.Code != http.StatusOK {
		t.Errorf("admin token: status = %d body=%s", rec.Code, rec.Body.String())
	}
}
