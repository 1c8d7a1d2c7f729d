package cli

import (
	"fmt"
	"strings"

	"github.com/quietroom/warden/internal/profile"
)

// openStore maps a --store value to a profile store backend.
//
//	memory
//	sqlite:/var/lib/warden/profiles.db
//	redis://localhost:6379/0
func openStore(spec string) (profile.Store, error) {
	switch {
	case spec == "" || spec == "memory":
		return profile.NewMemoryStore(), nil
	case strings.HasPrefix(spec, "sqlite:"):
		return profile.OpenSQLite(strings.TrimPrefix(spec, "sqlite:"))
	case strings.HasPrefix(spec, "redis://"), strings.HasPrefix(spec, "rediss://"):
		return profile.OpenRedis(spec)
	default:
		return nil, fmt.Errorf("unknown store %q (use memory, sqlite:<path>, or redis://<addr>)", spec)
	}
}
