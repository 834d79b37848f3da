/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package admission_test

import (
	"bytes"
	"fmt"
	stdlog "log"
	"net/http"
	"net/http/httptest"

	"github.com/acronis/go-appkit/config"

	"github.com/acronis/go-admitkit/admission"
)

func Example() {
	cfgData := bytes.NewReader([]byte(`
admission:
  rateLimit: 2/m
  clients:
    - alpha
    - beta
`))
	cfg := admission.NewConfig()
	if err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg); err != nil {
		stdlog.Fatal(err)
		return
	}

	registry, err := admission.NewRegistryFromConfig(cfg, admission.RegistryOpts{})
	if err != nil {
		stdlog.Fatal(err)
		return
	}

	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	handler := admission.Middleware(registry, "MyService")(next)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	sendReq := func(clientID string) {
		req, reqErr := http.NewRequest(http.MethodGet, srv.URL, nil)
		if reqErr != nil {
			stdlog.Fatal(reqErr)
			return
		}
		req.Header.Set(admission.DefaultClientIDHeader, clientID)
		resp, respErr := http.DefaultClient.Do(req)
		if respErr != nil {
			stdlog.Fatal(respErr)
			return
		}
		_ = resp.Body.Close()
		fmt.Printf("%s: %d\n", clientID, resp.StatusCode)
	}

	sendReq("alpha")
	sendReq("alpha")
	sendReq("alpha") // Budget exhausted, rate-limited.
	sendReq("beta")  // Other clients are unaffected.
	sendReq("gamma") // Not recognized.

	// Output:
	// alpha: 200
	// alpha: 200
	// alpha: 429
	// beta: 200
	// gamma: 403
}
