package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	apperrors "github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/httpclient"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// IdentityClient resolves actors and role membership from the identity
// service. Actor lookups are cached for a short TTL; role listings are not,
// so a newly blocked officer stops receiving work on the next assignment.
type IdentityClient struct {
	client *httpclient.Client
	ttl    time.Duration
	actors *cache.Cache
}

// NewIdentityClient creates an identity client. A zero ttl disables caching.
func NewIdentityClient(baseURL string, timeout, ttl time.Duration) *IdentityClient {
	return &IdentityClient{
		client: httpclient.NewClient(baseURL, timeout),
		ttl:    ttl,
		actors: cache.New(ttl, 2*ttl),
	}
}

// GetActor returns the user with their workflow roles.
func (c *IdentityClient) GetActor(ctx context.Context, userID string) (*domain.Actor, error) {
	if a, ok := c.cached(userID); ok {
		return a, nil
	}

	var resp UserResponse
	path := "/api/v1/users/get?id=" + url.QueryEscape(userID)
	if err := c.client.Get(ctx, path, &resp); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to resolve actor")
	}

	actor := toActor(resp)
	c.store(actor)
	return &actor, nil
}

// ListUsersWithRole returns every user holding role, blocked ones included.
func (c *IdentityClient) ListUsersWithRole(ctx context.Context, role domain.Role) ([]domain.Actor, error) {
	var resp ListUsersResponse
	path := "/api/v1/users/by-role?role=" + url.QueryEscape(string(role))
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, fmt.Sprintf("failed to list users with role %s", role))
	}

	out := make([]domain.Actor, 0, len(resp.Users))
	for _, u := range resp.Users {
		out = append(out, toActor(u))
	}
	return out, nil
}

func (c *IdentityClient) cached(id string) (*domain.Actor, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	v, ok := c.actors.Get(id)
	if !ok {
		return nil, false
	}
	a := v.(domain.Actor)
	a.Roles = append([]domain.Role(nil), a.Roles...)
	return &a, true
}

func (c *IdentityClient) store(a domain.Actor) {
	if c.ttl <= 0 {
		return
	}
	c.actors.Set(a.ID, a, c.ttl)
}

// toActor keeps only roles the workflow knows; names are matched exactly.
// SYSTEM is reserved for the engine and never granted from outside.
func toActor(u UserResponse) domain.Actor {
	a := domain.Actor{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		DepartmentID: u.DepartmentID,
		Blocked:      u.Blocked,
	}
	for _, r := range u.Roles {
		if role, ok := domain.ParseRole(r); ok && role != domain.RoleSystem {
			a.Roles = append(a.Roles, role)
		}
	}
	return a
}
