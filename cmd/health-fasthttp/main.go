package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Sidecar for deployments whose probes cannot reach the daemon's admin
// listener directly (or cannot speak UDP at all): each /healthz request
// relays a readiness check to the admin endpoint and reports its verdict.
func main() {
	addr := flag.String("addr", ":8081", "listen address for the health sidecar")
	target := flag.String("target", "http://127.0.0.1:8080/readyz", "admin readiness URL to relay to")
	timeout := flag.Duration("timeout", 2*time.Second, "readiness check timeout")
	flag.Parse()

	client := &fasthttp.Client{Name: "hyquery-health"}

	h := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			code, body, err := client.GetTimeout(nil, *target, *timeout)
			if err != nil {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				_, _ = ctx.WriteString(fmt.Sprintf("{\"status\":\"unreachable\",\"error\":%q}", err.Error()))
				return
			}
			if code != fasthttp.StatusOK {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				_, _ = ctx.WriteString(fmt.Sprintf("{\"status\":\"not_ready\",\"detail\":%q}", string(body)))
				return
			}
			ctx.SetStatusCode(fasthttp.StatusOK)
			_, _ = ctx.WriteString("{\"status\":\"ok\"}")
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("health sidecar listening on %s, relaying to %s\n", *addr, *target)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "hyquery-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health sidecar exit: %v\n", err)
	}
}
