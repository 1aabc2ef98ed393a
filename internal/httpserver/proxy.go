package httpserver

import (
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
)

// AuthPrefix is forwarded to the external auth service so login, logout and
// registration share the storefront's origin and its cookies.
const AuthPrefix = "/api/v1/auth"

// NewProxy forwards requests to target with stripPrefix removed from the path.
func NewProxy(target, stripPrefix string) (echo.HandlerFunc, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	p := httputil.NewSingleHostReverseProxy(u)
	p.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	direct := p.Director
	p.Director = func(req *http.Request) {
		host := req.Host
		proto := "http"
		if req.TLS != nil {
			proto = "https"
		} else if xf := req.Header.Get(echo.HeaderXForwardedProto); xf != "" {
			proto = xf
		}

		direct(req)

		if stripPrefix != "" {
			req.URL.Path = "/" + strings.TrimLeft(strings.TrimPrefix(req.URL.Path, stripPrefix), "/")
			req.URL.RawPath = ""
		}
		if req.Header.Get(echo.HeaderXForwardedProto) == "" {
			req.Header.Set(echo.HeaderXForwardedProto, proto)
		}
		if req.Header.Get("X-Forwarded-Host") == "" && host != "" {
			req.Header.Set("X-Forwarded-Host", host)
		}
	}
	p.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		logging.FromContext(req.Context()).Error("proxy_error", "status", 502, "target", u.Host, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}

	return func(c echo.Context) error {
		p.ServeHTTP(c.Response(), c.Request())
		return nil
	}, nil
}
