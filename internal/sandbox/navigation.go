package sandbox

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// Navigator enforces a mini-app's pages allowlist
type Navigator struct {
	appID   string
	allowed []string
	logger  *zap.Logger
}

// NewNavigator builds a gate from manifest pages. The main page is always
// reachable.
func NewNavigator(appID, mainPage string, pages []string, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make([]string, 0, len(pages)+1)
	if main := NormalizePage(mainPage); main != "" {
		allowed = append(allowed, main)
	}
	for _, p := range pages {
		if n := NormalizePage(p); n != "" {
			allowed = append(allowed, n)
		}
	}
	return &Navigator{appID: appID, allowed: allowed, logger: logger}
}

// NormalizePage reduces a navigation target to its allowlist form: no
// query or fragment, no leading "/", no trailing "/" or ".html".
func NormalizePage(target string) string {
	target = strings.TrimSpace(target)
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimPrefix(target, "/")
	target = strings.TrimSuffix(target, "/")
	target = strings.TrimSuffix(target, ".html")
	return target
}

// Allowed reports whether target may be navigated to. Blocked targets are
// logged.
func (n *Navigator) Allowed(target string) bool {
	ref, local := localPath(n.appID, strings.TrimSpace(target))
	page := NormalizePage(ref)
	if local && page != "" && !hasDotSegment(page) && n.match(page) {
		return true
	}
	n.logger.Warn("Blocked navigation",
		zap.String("app_id", n.appID),
		zap.String("target", target))
	return false
}

func (n *Navigator) match(page string) bool {
	for _, allowed := range n.allowed {
		if page == allowed || strings.HasPrefix(page, allowed+"/") {
			return true
		}
		if ok, err := doublestar.Match(allowed, page); err == nil && ok {
			return true
		}
	}
	return false
}

func hasDotSegment(page string) bool {
	for _, seg := range strings.Split(page, "/") {
		if seg == ".." || seg == "." {
			return true
		}
	}
	return false
}
