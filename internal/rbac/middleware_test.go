package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"voiceagents/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, id auth.Identity, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}, RequireWorkspace(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	return w.Code
}

func TestRequireAnyRole(t *testing.T) {
	tests := []struct {
		name string
		id   auth.Identity
		want int
	}{
		{"operator may command", auth.Identity{UserID: "u", WorkspaceID: "w", Role: RoleOperator}, http.StatusOK},
		{"analyst may not command", auth.Identity{UserID: "u", WorkspaceID: "w", Role: RoleAnalyst}, http.StatusForbidden},
		{"super admin bypasses", auth.Identity{UserID: "u", WorkspaceID: "w", Role: RoleSuperAdmin}, http.StatusOK},
		{"workspace required", auth.Identity{UserID: "u", Role: RoleOwner}, http.StatusUnauthorized},
		{"role required", auth.Identity{UserID: "u", WorkspaceID: "w"}, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		if got := serve(t, tc.id, CommandRoles...); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestReadRolesIncludeAnalyst(t *testing.T) {
	id := auth.Identity{UserID: "u", WorkspaceID: "w", Role: RoleAnalyst}
	if got := serve(t, id, ReadRoles...); got != http.StatusOK {
		t.Fatalf("expected 200, got %d", got)
	}
}
