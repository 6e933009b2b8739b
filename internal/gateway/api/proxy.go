/**
 * @description
 * Reverse proxy wiring for the API gateway. Each downstream service gets an
 * httputil.ReverseProxy that rewrites the public path prefix to the service's
 * own path space and stamps the internal API key so downstream services can
 * tell gateway traffic from strays.
 *
 * @dependencies
 * - net/http/httputil, net/url: Standard Go libraries for proxying.
 */

package api

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// ServiceProxy forwards requests to a downstream service, rewriting the
// public prefix. A request for /api/payments/transactions/payment with prefix
// /api/payments becomes /transactions/payment downstream.
type ServiceProxy struct {
	prefix string
	proxy  *httputil.ReverseProxy
}

// NewServiceProxy builds a proxy for the downstream base URL. The internal
// API key, when set, is attached to every forwarded request.
func NewServiceProxy(prefix, targetURL, internalAPIKey string) (*ServiceProxy, error) {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	baseDirector := proxy.Director
	proxy.Director = func(r *http.Request) {
		baseDirector(r)
		r.URL.Path = rewritePath(r.URL.Path, prefix)
		r.Host = target.Host
		if internalAPIKey != "" {
			r.Header.Set("X-Internal-Api-Key", internalAPIKey)
		}
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("level=error component=proxy target=%s path=%s err=%v", target.Host, r.URL.Path, err)
		http.Error(w, "Downstream service unavailable", http.StatusBadGateway)
	}

	return &ServiceProxy{prefix: prefix, proxy: proxy}, nil
}

func (p *ServiceProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

func rewritePath(path, prefix string) string {
	rewritten := strings.TrimPrefix(path, prefix)
	if rewritten == "" || !strings.HasPrefix(rewritten, "/") {
		rewritten = "/" + rewritten
	}
	return rewritten
}
