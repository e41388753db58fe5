// internal/requestinfo/requestinfo.go
//
// Per-request client metadata for access logs and tenant audit lines.
//
// Context
// -------
// `Enrich` sits right after request-ID tagging.  For every request it:
//
//  1. Extracts the left-most client IP from X-Forwarded-For or X-Real-IP,
//     falling back to `r.RemoteAddr`.
//  2. Parses the User-Agent into browser family, device class, and bot flag.
//  3. Performs an optional GeoLite2 country lookup.
//  4. Stores an inert `*Info` in the request context.
//
// Dependencies
//   - github.com/avct/uasurfer         (UA parsing)
//   - github.com/oschwald/geoip2-golang (MaxMind lookup)
package requestinfo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// Info is safe to log or JSON-encode.
type Info struct {
	IP      net.IP `json:"ip"`
	Country string `json:"country,omitempty"` // ISO code, empty without a Geo DB
	Browser string `json:"browser"`           // "Chrome", "Firefox", …
	Device  string `json:"device"`            // "Desktop", "Phone", …
	IsBot   bool   `json:"bot"`
}

// Fields renders i as zap fields for access logs.
func (i *Info) Fields() []zap.Field {
	if i == nil {
		return nil
	}
	return []zap.Field{
		zap.String("client_ip", i.IP.String()),
		zap.String("country", i.Country),
		zap.String("browser", i.Browser),
		zap.String("device", i.Device),
		zap.Bool("bot", i.IsBot),
	}
}

// Enricher attaches *Info to each request.  A nil Geo reader skips the
// country lookup.
type Enricher struct {
	geo *geoip2.Reader
}

// New opens the GeoLite2 database at geoPath when it is non-empty.
func New(geoPath string) (*Enricher, error) {
	e := &Enricher{}
	if geoPath == "" {
		return e, nil
	}
	r, err := geoip2.Open(geoPath)
	if err != nil {
		return nil, fmt.Errorf("requestinfo: open geo db: %w", err)
	}
	e.geo = r
	return e, nil
}

// Close releases the Geo database.
func (e *Enricher) Close() error {
	if e.geo == nil {
		return nil
	}
	return e.geo.Close()
}

// Enrich wraps an http.Handler, attaches *Info, and forwards.
func (e *Enricher) Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := e.inspect(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, info)))
	})
}

func (e *Enricher) inspect(r *http.Request) *Info {
	u := uasurfer.Parse(r.UserAgent())
	info := &Info{
		IP:      clientIP(r),
		Browser: strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Device:  deviceName(u.DeviceType),
		IsBot:   u.IsBot(),
	}
	if e.geo != nil && info.IP != nil {
		if rec, err := e.geo.Country(info.IP); err == nil {
			info.Country = rec.Country.IsoCode
		}
	}
	return info
}

type ctxKey struct{}

// FromContext returns the *Info stored by Enrich, or nil.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(ctxKey{}).(*Info)
	return v
}

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-Ip"))); ip != nil {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(r.RemoteAddr)
}

func deviceName(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}
