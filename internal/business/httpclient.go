package business

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/openkcm/contract-calculator/internal/config"
)

func loadHTTPClient(auth config.ClientAuth) (*http.Client, error) {
	switch auth.Type {
	case config.ClientAuthMTLS:
		if auth.MTLS == nil {
			return nil, errors.New("missing mTLS config")
		}

		tlsConfig, err := commoncfg.LoadMTLSConfig(auth.MTLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load mTLS config: %w", err)
		}

		return &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}, nil
	case config.ClientAuthAPIKey:
		key, err := commoncfg.LoadValueFromSourceRef(auth.APIKey)
		if err != nil {
			return nil, fmt.Errorf("loading api key: %w", err)
		}

		return &http.Client{
			Transport: &apiKeyRoundTripper{
				header: auth.APIKeyHeader,
				key:    string(key),
				next:   http.DefaultTransport,
			},
		}, nil
	case config.ClientAuthInsecure, "":
		return http.DefaultClient, nil
	default:
		return nil, errors.New("unknown Client Auth type")
	}
}

// apiKeyRoundTripper authenticates requests to hosted RPC nodes.
type apiKeyRoundTripper struct {
	header string
	key    string
	next   http.RoundTripper
}

func (t *apiKeyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(t.header, t.key)

	return t.next.RoundTrip(req)
}
