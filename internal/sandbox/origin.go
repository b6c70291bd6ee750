package sandbox

import (
	"net/url"
	"strings"
)

// OriginSuffix is the synthetic domain all mini-app origins live under
const OriginSuffix = ".miniapp.local"

// Origin returns the synthetic origin for appID
func Origin(appID string) string {
	return "https://" + appID + OriginSuffix
}

// AppIDFromOrigin extracts the app id from an origin or URL on the
// synthetic domain.
func AppIDFromOrigin(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" {
		return "", false
	}
	host := u.Hostname()
	if !strings.HasSuffix(host, OriginSuffix) {
		return "", false
	}
	appID := strings.TrimSuffix(host, OriginSuffix)
	if appID == "" {
		return "", false
	}
	return appID, true
}

// localPath maps a reference found in a page onto an asset path for appID.
// Absolute URLs are accepted only on appID's own origin and come back
// rooted with a leading "/".
func localPath(appID, ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" && u.Host == "" {
		return u.Path, u.Path != ""
	}
	owner, ok := AppIDFromOrigin(ref)
	if !ok || owner != appID {
		return "", false
	}
	return u.Path, u.Path != ""
}
