package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

func identityServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Path {
		case "/api/v1/users/get":
			if r.URL.Query().Get("id") != "u-1" {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(UserResponse{
				ID:           "u-1",
				Name:         "Ada",
				Roles:        []string{"procurement_officer", "SYSTEM", "PROCUREMENT"},
				DepartmentID: "d-1",
			})
		case "/api/v1/users/by-role":
			assert.Equal(t, "PROCUREMENT_OFFICER", r.URL.Query().Get("role"))
			_ = json.NewEncoder(w).Encode(ListUsersResponse{Users: []UserResponse{
				{ID: "o-2", Roles: []string{"PROCUREMENT_OFFICER"}},
				{ID: "o-1", Roles: []string{"PROCUREMENT_OFFICER"}, Blocked: true},
			}})
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
}

func TestIdentityClient_GetActorMapsRolesExactly(t *testing.T) {
	var hits int32
	srv := identityServer(t, &hits)
	defer srv.Close()

	c := NewIdentityClient(srv.URL, time.Second, 0)
	actor, err := c.GetActor(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Equal(t, []domain.Role{domain.RoleProcurementOfficer}, actor.Roles,
		"SYSTEM is never granted and unknown roles are dropped")
	assert.Equal(t, "d-1", actor.DepartmentID)
}

func TestIdentityClient_NotFound(t *testing.T) {
	var hits int32
	srv := identityServer(t, &hits)
	defer srv.Close()

	_, err := NewIdentityClient(srv.URL, time.Second, 0).GetActor(context.Background(), "nobody")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}

func TestIdentityClient_CachesActors(t *testing.T) {
	var hits int32
	srv := identityServer(t, &hits)
	defer srv.Close()

	c := NewIdentityClient(srv.URL, time.Second, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := c.GetActor(context.Background(), "u-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	time.Sleep(120 * time.Millisecond)
	_, err := c.GetActor(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestIdentityClient_CachedActorIsACopy(t *testing.T) {
	var hits int32
	srv := identityServer(t, &hits)
	defer srv.Close()

	c := NewIdentityClient(srv.URL, time.Second, time.Minute)
	first, err := c.GetActor(context.Background(), "u-1")
	require.NoError(t, err)
	first.Roles[0] = domain.RoleAdmin
	first.Blocked = true

	second, err := c.GetActor(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleProcurementOfficer}, second.Roles)
	assert.False(t, second.Blocked)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestIdentityClient_ListUsersWithRole(t *testing.T) {
	var hits int32
	srv := identityServer(t, &hits)
	defer srv.Close()

	users, err := NewIdentityClient(srv.URL, time.Second, time.Minute).
		ListUsersWithRole(context.Background(), domain.RoleProcurementOfficer)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.True(t, users[1].Blocked)
}
