package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to GET, POST, OPTIONS.
	AllowMethods []string
	// AllowHeaders, when empty, echoes Access-Control-Request-Headers.
	AllowHeaders  []string
	ExposeHeaders []string
	// AllowCredentials disables the "*" answer: the request origin is echoed
	// instead.
	AllowCredentials bool
	// MaxAge is the preflight cache duration in seconds. Zero omits the
	// header, negative sends 0.
	MaxAge int
}

type cors struct {
	any     bool
	origins map[string]string // lower-case -> configured spelling

	methods, headers, expose, maxAge string
	credentials                      bool
}

func newCORS(cfg CORSConfig) *cors {
	c := &cors{
		any:         len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.any = true
			continue
		}
		c.origins[strings.ToLower(o)] = o
	}
	if c.methods == "" {
		c.methods = "GET, POST, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		c.maxAge = "0"
	}
	return c
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it is not allowed.
func (c *cors) allowOrigin(origin string) string {
	if c.any {
		if c.credentials {
			return origin
		}
		return "*"
	}
	return c.origins[strings.ToLower(origin)]
}

// varies reports whether the answer depends on the Origin header.
func (c *cors) varies() bool {
	return !c.any || c.credentials
}

func (c *cors) preflight(w http.ResponseWriter, r *http.Request, allow string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	if allow != "" {
		h.Set("Access-Control-Allow-Origin", allow)
		h.Set("Access-Control-Allow-Methods", c.methods)
		if c.headers != "" {
			h.Set("Access-Control-Allow-Headers", c.headers)
		} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
			h.Set("Access-Control-Allow-Headers", req)
		}
		if c.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if c.maxAge != "" {
			h.Set("Access-Control-Max-Age", c.maxAge)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// CORS answers preflight requests and decorates cross-origin responses.
func CORS(cfg CORSConfig) Middleware {
	c := newCORS(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if c.varies() {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allow := c.allowOrigin(origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				c.preflight(w, r, allow)
				return
			}

			if c.varies() {
				w.Header().Add("Vary", "Origin")
			}
			if allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				if c.credentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if c.expose != "" {
					w.Header().Set("Access-Control-Expose-Headers", c.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
