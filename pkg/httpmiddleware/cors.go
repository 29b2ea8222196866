package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests. Empty
	// or containing "*" means every origin.
	AllowOrigins []string

	// AllowMethods lists the methods clients may use in actual requests.
	// Empty defaults to "GET, POST, PUT, DELETE, OPTIONS".
	AllowMethods []string

	// AllowHeaders lists request headers clients may send. Empty echoes the
	// Access-Control-Request-Headers of the preflight back.
	AllowHeaders []string

	// ExposeHeaders lists response headers the browser may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and Authorization on cross-origin
	// requests. The wildcard origin is not valid with credentials, so the
	// middleware switches to echoing the specific origin.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; negative sends "0".
	MaxAge int
}

// cors is the precomputed form of CORSConfig: everything that can be joined
// or lowercased once happens in CORS, not per request.
type cors struct {
	allowAll    bool
	origins     map[string]string // lowercase -> original case
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

// CORS returns a middleware handling Cross-Origin Resource Sharing.
//
// Origin matching is case-insensitive but the configured casing is echoed
// back, and Vary headers are set so shared caches never serve one origin's
// response to another.
func CORS(cfg CORSConfig) Middleware {
	c := &cors{
		allowAll:    len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.allowAll = true
			break
		}
		c.origins[strings.ToLower(o)] = o
	}
	// Credentials forbid the wildcard; echo the specific origin instead.
	if c.credentials {
		c.allowAll = false
	}
	if c.methods == "" {
		c.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		c.maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin request: outside CORS scope, but caches still have
			// to vary on Origin when responses differ per origin.
			if origin == "" {
				if !c.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				c.preflight(w, r, origin)
				return
			}
			c.actual(w, origin)
			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin resolves the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func (c *cors) allowOrigin(origin string) string {
	if c.allowAll {
		return "*"
	}
	return c.origins[strings.ToLower(origin)]
}

func (c *cors) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Vary", "Access-Control-Request-Method")
	w.Header().Add("Vary", "Access-Control-Request-Headers")

	if allow := c.allowOrigin(origin); allow != "" {
		w.Header().Set("Access-Control-Allow-Origin", allow)
		w.Header().Set("Access-Control-Allow-Methods", c.methods)

		if c.headers != "" {
			w.Header().Set("Access-Control-Allow-Headers", c.headers)
		} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
			w.Header().Set("Access-Control-Allow-Headers", rh)
		}
		if c.credentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if c.maxAge != "" {
			w.Header().Set("Access-Control-Max-Age", c.maxAge)
		}
	}
	// Disallowed origins get a bare 204 with no CORS headers.
	w.WriteHeader(http.StatusNoContent)
}

func (c *cors) actual(w http.ResponseWriter, origin string) {
	if !c.allowAll {
		w.Header().Add("Vary", "Origin")
	}
	allow := c.allowOrigin(origin)
	if allow == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", allow)
	if c.credentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if c.expose != "" {
		w.Header().Set("Access-Control-Expose-Headers", c.expose)
	}
}
