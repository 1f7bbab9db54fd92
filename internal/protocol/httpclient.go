package protocol

import (
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
)

// Client is the transport the send worker drives. Every method returns
// the parsed response, or nil on a transport-level failure (timeout,
// connection reset, unreadable body).
type Client interface {
	// SendStatusRequest polls the server for the current capture
	// configuration.
	SendStatusRequest() *StatusResponse

	// SendBeaconRequest posts one beacon chunk.
	SendBeaconRequest(clientIPAddress string, beaconData []byte) *StatusResponse

	// SendNewSessionRequest announces a newly created session.
	SendNewSessionRequest() *StatusResponse
}

// ClientProvider creates transport clients from connection snapshots.
// The indirection keeps the transport substitutable in tests.
type ClientProvider interface {
	CreateClient(cfg *config.HTTPClientConfiguration) Client
}

type defaultClientProvider struct {
	log logging.Logger
}

// NewDefaultClientProvider returns the provider creating real HTTP
// clients.
func NewDefaultClientProvider(log logging.Logger) ClientProvider {
	return &defaultClientProvider{log: log}
}

func (p *defaultClientProvider) CreateClient(cfg *config.HTTPClientConfiguration) Client {
	return NewHTTPClient(p.log, cfg)
}

// requestTimeout bounds every round trip; the send worker must never
// hang in blocking I/O past a shutdown for longer than this.
const requestTimeout = 30 * time.Second

// gzipCompressionThreshold is the body size above which beacon payloads
// are gzip-compressed.
const gzipCompressionThreshold = 64

// HTTPClient implements Client on net/http.
type HTTPClient struct {
	log        logging.Logger
	httpClient *http.Client

	monitorURL    string
	newSessionURL string
	serverID      int32
}

// NewHTTPClient creates a client for one connection snapshot. The
// monitor and new-session URLs are precomputed; a server id change means
// a new snapshot and with it a new client.
func NewHTTPClient(log logging.Logger, cfg *config.HTTPClientConfiguration) *HTTPClient {
	transport := &http.Transport{}
	if cfg.TrustAllCertificates {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &HTTPClient{
		log: log,
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
		monitorURL:    buildMonitorURL(cfg.BaseURL, cfg.ApplicationID, cfg.ServerID),
		newSessionURL: buildNewSessionURL(cfg.BaseURL, cfg.ApplicationID, cfg.ServerID),
		serverID:      cfg.ServerID,
	}
}

// buildMonitorURL assembles the status/beacon URL. The application id is
// already percent-encoded in the configuration snapshot.
func buildMonitorURL(baseURL, applicationID string, serverID int32) string {
	return fmt.Sprintf("%s?type=m&srvid=%d&app=%s&va=%s&pt=%d&tt=%s",
		baseURL, serverID, applicationID, AgentVersion, PlatformType, AgentTechnologyType)
}

func buildNewSessionURL(baseURL, applicationID string, serverID int32) string {
	return buildMonitorURL(baseURL, applicationID, serverID) + "&ns=1"
}

// SendStatusRequest implements Client.
func (c *HTTPClient) SendStatusRequest() *StatusResponse {
	return c.doRequest(http.MethodGet, c.monitorURL, "", nil)
}

// SendNewSessionRequest implements Client.
func (c *HTTPClient) SendNewSessionRequest() *StatusResponse {
	return c.doRequest(http.MethodGet, c.newSessionURL, "", nil)
}

// SendBeaconRequest implements Client.
func (c *HTTPClient) SendBeaconRequest(clientIPAddress string, beaconData []byte) *StatusResponse {
	return c.doRequest(http.MethodPost, c.monitorURL, clientIPAddress, beaconData)
}

func (c *HTTPClient) doRequest(method, url, clientIPAddress string, body []byte) *StatusResponse {
	if c.log.DebugEnabled() {
		c.log.Debugf("HTTPClient %s %s (%d body bytes)", method, url, len(body))
	}

	req, err := c.buildRequest(method, url, clientIPAddress, body)
	if err != nil {
		c.log.Warnf("HTTPClient failed to build request: %v", err)
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warnf("HTTPClient %s %s failed: %v", method, url, err)
		return nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.log.Warnf("HTTPClient failed to read response body: %v", err)
		return nil
	}

	if c.log.DebugEnabled() {
		c.log.Debugf("HTTPClient response code=%d body=%q", resp.StatusCode, string(raw))
	}
	return ParseStatusResponse(string(raw), resp.StatusCode, resp.Header)
}

func (c *HTTPClient) buildRequest(method, url, clientIPAddress string, body []byte) (*http.Request, error) {
	var reader io.Reader
	gzipped := false
	if len(body) > 0 {
		if len(body) > gzipCompressionThreshold {
			compressed, err := gzipCompress(body)
			if err != nil {
				return nil, fmt.Errorf("protocol: gzip beacon body: %w", err)
			}
			body = compressed
			gzipped = true
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("protocol: new request: %w", err)
	}
	if clientIPAddress != "" {
		req.Header.Set("X-Client-IP", clientIPAddress)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	if gzipped {
		req.Header.Set("Content-Encoding", "gzip")
	}
	return req, nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
