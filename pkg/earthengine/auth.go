package earthengine

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes requested for Earth Engine access.
var Scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// TokenSource loads credentials from a service-account key file, or from
// Application Default Credentials when path is empty. Failures wrap
// ErrNotAuthenticated.
func TokenSource(ctx context.Context, path string) (oauth2.TokenSource, error) {
	if path == "" {
		creds, err := google.FindDefaultCredentials(ctx, Scopes...)
		if err != nil {
			return nil, eris.Wrap(ErrNotAuthenticated, "default credentials: "+err.Error())
		}
		return creds.TokenSource, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "earthengine: read credentials %s", path)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
	if err != nil {
		return nil, eris.Wrap(ErrNotAuthenticated, "parse credentials: "+err.Error())
	}
	return oauth2.ReuseTokenSource(nil, creds.TokenSource), nil
}
