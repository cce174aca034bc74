package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/gyanasetu/upload-relay/internal/domain"
)

var errNoCredentials = errors.New("no service account credentials configured")

// Credentials locates a service account key. JSON takes precedence over File.
type Credentials struct {
	// JSON is the key itself, typically supplied through an environment
	// variable.
	JSON string

	// File is the path of a key file used when JSON is empty.
	File string
}

// Authenticate loads the service account key and returns client options
// scoped to the given scopes. Missing or malformed credentials produce a
// KindAuthConfig error; callers should not retry.
func Authenticate(ctx context.Context, creds Credentials, scopes ...string) ([]option.ClientOption, error) {
	data, err := creds.load()
	if err != nil {
		return nil, domain.NewAuthConfigError("Storage credentials are not configured", err)
	}

	c, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, domain.NewAuthConfigError("Storage credentials are invalid", err)
	}

	return []option.ClientOption{option.WithCredentials(c)}, nil
}

func (c Credentials) load() ([]byte, error) {
	if strings.TrimSpace(c.JSON) != "" {
		return []byte(c.JSON), nil
	}
	if c.File == "" {
		return nil, errNoCredentials
	}
	data, err := os.ReadFile(c.File)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", errNoCredentials, c.File)
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials file %q: %w", c.File, err)
	}
	return data, nil
}
