// Package cors задаёт политику CORS для браузерного фронтенда: список
// разрешённых origin с нормализацией и вариантами с "www.".
package cors

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	chicors "github.com/go-chi/cors"
)

const wildcard = "*"

type Policy struct {
	allowed []string
	debug   bool
}

// NewPolicy: пустой список равносилен "*".
func NewPolicy(origins []string, debug bool) *Policy {
	p := &Policy{debug: debug}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == wildcard {
			p.allowed = []string{wildcard}
			return p
		}
		if n := normalizeOrigin(o); !slices.Contains(p.allowed, n) {
			p.allowed = append(p.allowed, n)
		}
	}
	if len(p.allowed) == 0 {
		p.allowed = []string{wildcard}
	}
	return p
}

func (p *Policy) Allowed(origin string) bool {
	ok := p.match(origin)
	if p.debug {
		slog.Info("cors decision", "origin", origin, "allowed", ok, "allow_list", p.allowed)
	}
	return ok
}

func (p *Policy) match(origin string) bool {
	// без Origin: same-origin или не браузер
	if origin == "" {
		return true
	}
	if slices.Contains(p.allowed, wildcard) {
		return true
	}
	norm := normalizeOrigin(origin)
	if slices.Contains(p.allowed, norm) {
		return true
	}
	return slices.Contains(p.allowed, wwwCounterpart(norm))
}

func (p *Policy) Handler() func(http.Handler) http.Handler {
	return chicors.Handler(chicors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return p.Allowed(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           600,
	})
}

// normalizeOrigin оставляет только scheme://host[:port]. Без схемы считается https.
func normalizeOrigin(v string) string {
	if u, err := url.Parse(v); err == nil && u.Scheme != "" && u.Host != "" {
		return originOf(u)
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
	if u, err := url.Parse("https://" + rest); err == nil && u.Host != "" {
		return originOf(u)
	}
	return strings.TrimSuffix(v, "/")
}

func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		return scheme + "://" + host
	}
	return scheme + "://" + host + ":" + port
}

func wwwCounterpart(norm string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if !strings.HasPrefix(norm, scheme) {
			continue
		}
		host := strings.TrimPrefix(norm, scheme)
		if strings.HasPrefix(host, "www.") {
			return scheme + strings.TrimPrefix(host, "www.")
		}
		return scheme + "www." + host
	}
	return ""
}
