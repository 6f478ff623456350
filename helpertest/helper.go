package helpertest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/onsi/ginkgo/v2"
)

// GetIntPort returns an port for the current testing
// process by adding the current ginkgo parallel process to
// the base port and returning it as int
func GetIntPort(port int) int {
	return port + ginkgo.GinkgoParallelProcess()
}

// GetStringPort returns an port for the current testing
// process by adding the current ginkgo parallel process to
// the base port and returning it as string
func GetStringPort(port int) string {
	return fmt.Sprintf("%d", GetIntPort(port))
}

// DoRequest performs a request with an optional body against the passed handler
func DoRequest(ctx context.Context, handler http.Handler, method, url, body string,
) (*httptest.ResponseRecorder, *bytes.Buffer) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	r, _ := http.NewRequestWithContext(ctx, method, url, reader)

	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, r)

	return rr, rr.Body
}

// DoGetRequest performs a GET request
func DoGetRequest(ctx context.Context, handler http.Handler, url string) (*httptest.ResponseRecorder, *bytes.Buffer) {
	return DoRequest(ctx, handler, http.MethodGet, url, "")
}

// TestServer creates a temp http server for the handler which is closed after the current test
func TestServer(handler http.Handler) *httptest.Server {
	srv := httptest.NewServer(handler)

	ginkgo.DeferCleanup(srv.Close)

	return srv
}
