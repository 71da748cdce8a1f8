package inventory

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"apidoc/internal/shared/util"
)

// Ref is one parsed external inventory reference. The accepted forms are
// "[name:]url[:base_url]" and "[name:]path:base_url".
type Ref struct {
	Name     string
	Location string
	BaseURL  string
	Remote   bool
}

// ParseRef splits an inventory reference. A label is anything before the
// first colon that does not start a URL scheme.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty inventory reference")
	}

	var ref Ref
	rest := s
	// a leading label is anything before the first colon that is neither
	// a URL scheme nor a path
	if i := strings.Index(rest, ":"); i > 0 && !startsWithScheme(rest) {
		if label := rest[:i]; !strings.ContainsAny(label, "/\\") {
			ref.Name = label
			rest = rest[i+1:]
		}
	}

	if startsWithScheme(rest) {
		ref.Remote = true
		ref.Location, ref.BaseURL = splitURLAndBase(rest)
	} else {
		// local file form requires a base url
		i := strings.Index(rest, ":")
		if i <= 0 {
			return Ref{}, fmt.Errorf("local inventory reference %q needs a base url", s)
		}
		ref.Location = rest[:i]
		ref.BaseURL = rest[i+1:]
	}
	if ref.Location == "" {
		return Ref{}, fmt.Errorf("inventory reference %q has no location", s)
	}
	if ref.Name == "" {
		ref.Name = deriveName(ref.Location)
	}
	if ref.BaseURL == "" && ref.Remote {
		ref.BaseURL = strings.TrimSuffix(ref.Location, "/objects.inv")
	}
	return ref, nil
}

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

func startsWithScheme(s string) bool {
	return schemePattern.MatchString(s)
}

// splitURLAndBase separates "url:base_url" where both sides are URLs.
func splitURLAndBase(s string) (string, string) {
	first := strings.Index(s, "://")
	if second := strings.Index(s[first+3:], "://"); second >= 0 {
		// walk back from the second scheme to the separating colon
		abs := first + 3 + second
		sep := strings.LastIndex(s[:abs], ":")
		return s[:sep], s[sep+1:]
	}
	return s, ""
}

func deriveName(location string) string {
	var segs []string
	for _, seg := range strings.FieldsFunc(location, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg != "" && seg != "." && seg != ".." {
			segs = append(segs, seg)
		}
	}
	if len(segs) == 0 {
		return "external"
	}
	last := segs[len(segs)-1]
	if last == "objects.inv" && len(segs) > 1 {
		return segs[len(segs)-2]
	}
	return last
}

// Loader fetches inventories over HTTP or from disk. Remote fetches
// share a token-bucket limiter so a long inventory list cannot hammer a
// docs host.
type Loader struct {
	client  *http.Client
	limiter *util.Limiter
}

func NewLoader() *Loader {
	return &Loader{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: util.NewLimiter(2, 4),
	}
}

func (l *Loader) Load(ctx context.Context, ref Ref) (*Inventory, error) {
	var inv *Inventory
	var err error
	if ref.Remote {
		inv, err = l.fetch(ctx, ref)
	} else {
		inv, err = l.readFile(ref)
	}
	if err != nil {
		return nil, err
	}
	inv.Name = ref.Name
	inv.BaseURL = ref.BaseURL
	return inv, nil
}

func (l *Loader) fetch(ctx context.Context, ref Ref) (*Inventory, error) {
	if err := l.limiter.Wait(ctx, 1); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.Location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", ref.Location, resp.Status)
	}
	return Decode(resp.Body)
}

func (l *Loader) readFile(ref Ref) (*Inventory, error) {
	f, err := os.Open(ref.Location)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
