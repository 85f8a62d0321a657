// Package httpserver hosts the ledger API behind the operational endpoints
// every deployment needs.
//
// A BaseServer serves:
//
//   - /livez and /readyz for orchestration health checks
//   - /drain and /undrain to take the instance out of rotation
//   - the routes of each RouteRegistrar, behind request logging and an
//     optional per-client rate limit (keyed on the peer address unless
//     TrustProxyHeaders is set; RateLimitExemptPaths bypass it)
//   - Prometheus metrics on MetricsAddr
//   - pprof under /debug when EnablePprof is set
//
// Shutdown drains first, then stops the listeners:
//
//	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
//	    ListenAddr:  ":8080",
//	    MetricsAddr: ":8090",
//	    Log:         log,
//	}, api)
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
