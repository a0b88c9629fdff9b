/*
Package servers runs the HTTP listeners of the configuration gateway.

# Server Configuration

ServerConfig carries the listen addresses of the API and of the Prometheus
metrics endpoint, the logger, the pprof switch, and the timeouts of the
underlying http.Server together with the drain and graceful shutdown
periods.

# Routing

New mounts every RouteRegistrar on one chi router. Handler routes are
wrapped with the request logging middleware; a panic anywhere is recovered
into a 500.

# Server Lifecycle

  - /livez always answers 200
  - /readyz answers 503 once /drain was called or Shutdown started
  - /drain flips readiness and holds the request for DrainDuration
  - /undrain restores readiness

RunInBackground starts both listeners without blocking. Shutdown stops the
API listener first and the metrics listener after it, each bounded by
GracefulShutdownDuration.

# Example Usage

	metricsSrv, err := metrics.New(common.PackageName, ":8090")
	if err != nil {
	    return err
	}
	srv, err := servers.New(&servers.ServerConfig{
	    ListenAddr:               "127.0.0.1:3030",
	    MetricsAddr:              ":8090",
	    Log:                      logger,
	    DrainDuration:            45 * time.Second,
	    GracefulShutdownDuration: 30 * time.Second,
	}, metricsSrv, handler)
	if err != nil {
	    return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package servers
