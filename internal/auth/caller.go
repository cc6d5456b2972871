package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/pendergraft/poolkeeper/internal/accounting/domain"
	"github.com/pendergraft/poolkeeper/internal/storage"
)

const callerContextKey contextKey = "caller"

// anonymous holds no roles; it may read but not change pool state.
var anonymous = domain.Caller{ID: "anonymous"}

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext returns the caller for a request. An explicit caller set
// with WithCaller wins, then the validated API key, then anonymous.
func CallerFromContext(ctx context.Context) domain.Caller {
	if c, ok := ctx.Value(callerContextKey).(domain.Caller); ok {
		return c
	}
	if key := GetAPIKeyFromContext(ctx); key != nil {
		return CallerFromKey(key)
	}
	return anonymous
}

// CallerFromKey maps an API key to a caller. Unknown role names are ignored.
func CallerFromKey(key *storage.APIKey) domain.Caller {
	c := domain.Caller{ID: key.ID}
	for _, name := range key.Roles {
		if role, err := domain.ParseRole(name); err == nil {
			c.Roles = append(c.Roles, role)
		}
	}
	return c
}

// ParseRoles validates a comma-separated role list. "all" expands to every role.
func ParseRoles(list string) ([]string, error) {
	var out []string
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == "all" {
			out = out[:0]
			for _, r := range domain.AllRoles {
				out = append(out, string(r))
			}
			return out, nil
		}
		role, err := domain.ParseRole(name)
		if err != nil {
			return nil, err
		}
		out = append(out, string(role))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	return out, nil
}
