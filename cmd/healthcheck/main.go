// healthcheck probes a running modmaild instance and exits non-zero when it
// is not ready. Intended for container health checks.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "base URL of the modmaild API")
	timeout := flag.Duration("timeout", 3*time.Second, "probe timeout")
	flag.Parse()

	client := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}
	status, body, err := client.GetTimeout(nil, *addr+"/readyz", *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	if status != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "not ready: status %d body %s\n", status, body)
		os.Exit(1)
	}
	fmt.Println("ok")
}
