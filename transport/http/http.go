// Package http provides a katapayadi transport over HTTP/HTTPS.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"strings"
	"sync"

	"github.com/achilleasa/katapayadi/config"
	"github.com/achilleasa/katapayadi/config/flag"
	"github.com/achilleasa/katapayadi/internal/logger"
	"github.com/achilleasa/katapayadi/transport"
	"go.uber.org/zap"
)

const (
	// The prefix for katapayadi headers.
	headerPrefix = "Kp-"

	// Reserved header names (in canonical form) used by the transport.
	requestIDHeader      = "Request-Id"
	senderHeader         = "Sender"
	senderEndpointHeader = "Sender-Endpoint"
	errorHeader          = "Error"

	// TLS verification options
	tlsVerifySkip          = "skip"
	tlsVerifyAddToCertPool = "cert_pool"
)

// Hooks for tests.
var (
	listen          = net.Listen
	readFile        = os.ReadFile
	loadX509KeyPair = tls.LoadX509KeyPair
	systemCertPool  = x509.SystemCertPool
)

var (
	errMissingCertificate   = errors.New("missing tls certificate/key configuration settings")
	errAddCertificateToPool = errors.New("could not add certificate to client certificate pool")
	errInvalidVerifyMode    = errors.New(`invalid tls verify option; supported values are "skip" and "cert_pool"`)
)

var (
	_ transport.Provider = (*Transport)(nil)

	singletonOnce     sync.Once
	singletonInstance *Transport
)

type binding struct {
	handler  transport.Handler
	service  string
	endpoint string
	version  string
}

// ServiceURLBuilder maps a (version, service, endpoint) tuple to the URL of
// the remote endpoint.
type ServiceURLBuilder interface {
	URL(version, service, endpoint string) string
}

type requestMaker interface {
	Do(req *nethttp.Request) (*nethttp.Response, error)
	CloseIdleConnections()
}

// Transport implements a katapayadi transport over HTTP/HTTPS.
//
// When operating as a server, the transport dispatches incoming POST requests
// with path "/service/endpoint" to the bound handlers. Any other request
// fails with http.StatusNotFound. Handler errors are mapped to status codes:
//   - 404 for transport.ErrNotFound
//   - 408 for transport.ErrTimeout
//   - 401 for transport.ErrNotAuthorized
//   - 500 for any other error; the error message is sent in the Kp-Error header
//
// Message headers travel as HTTP headers prefixed with "Kp-".
//
// While dialed, the transport watches the "transport/http" configuration
// path:
//   - protocol (default: http). Either "http" or "https".
//   - port (default: ""). The port to listen to; the protocol default if empty.
//   - tls/certificate, tls/key (default: ""). Used when protocol is "https".
//   - client/verifycert (default: cert_pool). How clients verify self-signed
//     certificates: "cert_pool" appends tls/certificate to the system pool,
//     "skip" disables verification.
//   - client/host (default: ""). Overrides the host used by clients.
//   - client/hostsuffix (default: ""). Appended to the service name when
//     building client URLs.
//
// Any change triggers a redial of the server listener and a rebuild of the
// client.
//
// Clients build remote URLs with the URLBuilder field if set. Otherwise the
// pattern "$protocol://$service(-$version)$hostsuffix(:$port)/$service/$endpoint"
// is used, with client/host replacing the "$service(-$version)$hostsuffix"
// part when defined. The HTTP transport assumes that versions are routed at
// the DNS level; the server side ignores them.
type Transport struct {
	mutex          sync.RWMutex
	serverRefCount int
	clientRefCount int

	bindings map[string]*binding

	// Config watch; only active while the transport is dialed.
	config      *flag.Map
	monitorStop chan struct{}
	monitorDone chan struct{}

	listener   net.Listener
	server     *nethttp.Server
	serverDone chan struct{}

	client    requestMaker
	clientErr error

	// URLBuilder can be set to implement custom service discovery rules.
	URLBuilder ServiceURLBuilder

	// ListenAddress, if set, overrides the address derived from the
	// protocol and port settings (e.g. "127.0.0.1:0").
	ListenAddress string
}

// New creates a new http transport instance.
func New() *Transport {
	return &Transport{
		bindings: make(map[string]*binding),
	}
}

// Factory returns a new HTTP transport as a transport.Provider.
func Factory() transport.Provider {
	return New()
}

// SingletonFactory returns a process-wide HTTP transport instance shared by
// every caller. It can be used as katapayadi.DefaultTransportFactory.
func SingletonFactory() transport.Provider {
	singletonOnce.Do(func() {
		singletonInstance = New()
	})
	return singletonInstance
}

// Addr returns the address of the server listener or nil if the transport is
// not dialed in server mode.
func (t *Transport) Addr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Dial connects the requested side of the transport. Dialing in server mode
// starts an HTTP server for the bound endpoints.
func (t *Transport) Dial(mode transport.Mode) error {
	t.mutex.Lock()

	refCount := &t.clientRefCount
	if mode == transport.ModeServer {
		refCount = &t.serverRefCount
	}
	if *refCount > 0 {
		*refCount++
		t.mutex.Unlock()
		return nil
	}

	startedMonitor := false
	if t.config == nil {
		t.startMonitor()
		startedMonitor = true
	}

	var err error
	if mode == transport.ModeServer {
		err = t.listen()
	} else {
		err = t.createClient()
	}

	if err != nil {
		var stopMonitor func()
		if startedMonitor {
			stopMonitor = t.detachMonitor()
		}
		t.mutex.Unlock()

		if stopMonitor != nil {
			stopMonitor()
		}
		return err
	}

	*refCount++
	t.mutex.Unlock()
	return nil
}

// Close decrements the reference count for the requested side. When the
// server side is closed for the last time, in-flight requests are allowed to
// complete before Close returns.
func (t *Transport) Close(mode transport.Mode) error {
	t.mutex.Lock()

	var server *nethttp.Server
	var serverDone chan struct{}
	switch mode {
	case transport.ModeServer:
		if t.serverRefCount == 0 {
			t.mutex.Unlock()
			return transport.ErrTransportClosed
		}

		t.serverRefCount--
		if t.serverRefCount == 0 {
			server, serverDone = t.server, t.serverDone
			t.server, t.serverDone, t.listener = nil, nil, nil
		}
	default:
		if t.clientRefCount == 0 {
			t.mutex.Unlock()
			return transport.ErrTransportClosed
		}

		t.clientRefCount--
		if t.clientRefCount == 0 && t.client != nil {
			t.client.CloseIdleConnections()
			t.client = nil
		}
	}

	var stopMonitor func()
	if t.serverRefCount == 0 && t.clientRefCount == 0 && t.config != nil {
		stopMonitor = t.detachMonitor()
	}
	t.mutex.Unlock()

	if server != nil {
		server.Shutdown(context.Background())
		<-serverDone
	}

	if stopMonitor != nil {
		stopMonitor()
	}
	return nil
}

// Bind registers a handler for requests to a service and endpoint tuple.
//
// The HTTP transport ignores the version argument as it assumes that routing
// to a service with a particular version is handled at the DNS level. Binding
// multiple versions of the same service and endpoint returns an error.
func (t *Transport) Bind(version, service, endpoint string, handler transport.Handler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	mountPoint := fmt.Sprintf("/%s/%s", service, endpoint)
	if _, exists := t.bindings[mountPoint]; exists {
		return fmt.Errorf(
			"binding (version: %q, service: %q, endpoint: %q) already defined",
			version,
			service,
			endpoint,
		)
	}

	t.bindings[mountPoint] = &binding{
		handler:  handler,
		service:  service,
		endpoint: endpoint,
		version:  version,
	}

	return nil
}

// Unbind removes a binding. Unknown bindings are ignored.
func (t *Transport) Unbind(version, service, endpoint string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	delete(t.bindings, fmt.Sprintf("/%s/%s", service, endpoint))
}

// Request performs an RPC and returns a channel for receiving the response.
func (t *Transport) Request(reqMsg transport.Message) <-chan transport.ImmutableMessage {
	resChan := make(chan transport.ImmutableMessage, 1)

	t.mutex.RLock()
	client, err := t.client, t.clientErr
	if t.clientRefCount == 0 {
		err = transport.ErrTransportClosed
	}
	var url string
	if err == nil {
		url = t.url(reqMsg.ReceiverVersion(), reqMsg.Receiver(), reqMsg.ReceiverEndpoint())
	}
	t.mutex.RUnlock()

	go func() {
		resMsg := transport.MakeResponse(reqMsg)
		if err == nil {
			err = t.roundTrip(client, url, reqMsg, resMsg)
		}
		if err != nil {
			resMsg.SetPayload(nil, err)
		}

		resChan <- resMsg
		close(resChan)
	}()

	return resChan
}

func (t *Transport) roundTrip(client requestMaker, url string, reqMsg transport.ImmutableMessage, resMsg *transport.GenericMessage) error {
	payload, _ := reqMsg.Payload()
	httpReq, err := nethttp.NewRequest(nethttp.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	for name, value := range reqMsg.Headers() {
		httpReq.Header.Set(headerPrefix+name, value)
	}

	// Reserved headers are set last so that user headers cannot override them.
	httpReq.Header.Set(headerPrefix+requestIDHeader, reqMsg.ID())
	httpReq.Header.Set(headerPrefix+senderHeader, reqMsg.Sender())
	httpReq.Header.Set(headerPrefix+senderEndpointHeader, reqMsg.SenderEndpoint())

	httpRes, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpRes.Body.Close()

	switch httpRes.StatusCode {
	case nethttp.StatusOK:
		resMsg.PayloadField, err = io.ReadAll(httpRes.Body)
		if err != nil {
			return err
		}
	case nethttp.StatusRequestTimeout:
		return transport.ErrTimeout
	case nethttp.StatusUnauthorized:
		return transport.ErrNotAuthorized
	case nethttp.StatusNotFound:
		return transport.ErrNotFound
	case nethttp.StatusInternalServerError:
		errMsg := httpRes.Header.Get(headerPrefix + errorHeader)
		if errMsg == "" {
			errMsg = "unknown error"
		}
		if known := transport.KnownError(errMsg); known != nil {
			return known
		}
		return errors.New(errMsg)
	default:
		return fmt.Errorf("unexpected http status %d", httpRes.StatusCode)
	}

	for name, value := range extractHeaders(httpRes.Header) {
		switch name {
		case requestIDHeader, errorHeader, senderHeader, senderEndpointHeader:
		default:
			resMsg.SetHeader(name, value)
		}
	}
	return nil
}

// url returns the remote URL for an outgoing request. It must be called
// while holding the mutex.
func (t *Transport) url(version, service, endpoint string) string {
	if t.URLBuilder != nil {
		return t.URLBuilder.URL(version, service, endpoint)
	}

	cfg := t.config.Get()
	port := cfg["port"]
	if port != "" {
		port = ":" + port
	}

	host := cfg["client/host"]
	if host == "" {
		if version != "" {
			version = "-" + version
		}
		host = service + version + cfg["client/hostsuffix"]
	}

	return fmt.Sprintf("%s://%s%s/%s/%s", cfg["protocol"], host, port, service, endpoint)
}

// startMonitor creates the config flag and starts a goroutine that redials
// the transport when the configuration changes. It must be called while
// holding the mutex.
func (t *Transport) startMonitor() {
	t.config = config.MapFlag("transport/http")
	t.monitorStop = make(chan struct{})
	t.monitorDone = make(chan struct{})

	go func(cfg *flag.Map, stop, done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-cfg.ChangeChan():
			}

			t.mutex.Lock()
			if t.config != cfg {
				t.mutex.Unlock()
				return
			}
			if t.serverRefCount > 0 {
				if err := t.listen(); err != nil {
					logger.Get().Error("http transport redial failed", zap.Error(err))
				}
			}
			if t.clientRefCount > 0 {
				t.clientErr = t.createClient()
			}
			t.mutex.Unlock()
		}
	}(t.config, t.monitorStop, t.monitorDone)
}

// detachMonitor detaches the config monitor from the transport and returns
// a function that stops it. It must be called while holding the mutex and the
// returned function must be invoked after releasing it.
func (t *Transport) detachMonitor() func() {
	cfg, stop, done := t.config, t.monitorStop, t.monitorDone
	t.config, t.monitorStop, t.monitorDone = nil, nil, nil

	return func() {
		close(stop)
		<-done
		cfg.CancelDynamicUpdates()
	}
}

// listen starts the HTTP server, replacing any running one. It must be
// called while holding the mutex.
func (t *Transport) listen() error {
	cfg := t.config.Get()

	var tlsConfig *tls.Config
	var listenAddr string
	switch protocol := cfg["protocol"]; protocol {
	case "http":
		listenAddr = ":http"
	case "https":
		listenAddr = ":https"
		var err error
		if tlsConfig, err = buildTLSConfig(cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported protocol %q", protocol)
	}

	if port := cfg["port"]; port != "" {
		listenAddr = ":" + port
	}
	if t.ListenAddress != "" {
		listenAddr = t.ListenAddress
	}

	if t.server != nil {
		t.server.Close()
		<-t.serverDone
		t.server, t.serverDone, t.listener = nil, nil, nil
	}

	listener, err := listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	srv := &nethttp.Server{
		Handler:   nethttp.HandlerFunc(t.serveHTTP),
		TLSConfig: tlsConfig,
		ErrorLog:  zap.NewStdLog(logger.Get()),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(listener)
	}()

	t.listener, t.server, t.serverDone = listener, srv, done
	logger.Get().Info("http transport listening", zap.Stringer("addr", listener.Addr()))
	return nil
}

// serveHTTP is invoked (in a goroutine) for each incoming HTTP request.
func (t *Transport) serveHTTP(rw nethttp.ResponseWriter, httpReq *nethttp.Request) {
	defer httpReq.Body.Close()

	if httpReq.Method != nethttp.MethodPost {
		rw.WriteHeader(nethttp.StatusNotFound)
		return
	}

	t.mutex.RLock()
	b, exists := t.bindings[httpReq.URL.Path]
	t.mutex.RUnlock()
	if !exists {
		rw.WriteHeader(nethttp.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(httpReq.Body)
	if err != nil {
		rw.Header().Set(headerPrefix+errorHeader, err.Error())
		rw.WriteHeader(nethttp.StatusInternalServerError)
		return
	}

	reqMsg := transport.MakeGenericMessage()
	defer reqMsg.Close()
	reqMsg.ReceiverField = b.service
	reqMsg.ReceiverEndpointField = b.endpoint
	reqMsg.ReceiverVersionField = b.version
	reqMsg.PayloadField = payload

	for name, value := range extractHeaders(httpReq.Header) {
		switch name {
		case requestIDHeader:
			reqMsg.IDField = value
		case senderHeader:
			reqMsg.SenderField = value
		case senderEndpointHeader:
			reqMsg.SenderEndpointField = value
		default:
			reqMsg.SetHeader(name, value)
		}
	}

	resMsg := transport.MakeResponse(reqMsg)
	defer resMsg.Close()

	b.handler.Process(reqMsg, resMsg)

	switch err := resMsg.ErrField; {
	case err == nil:
	case errors.Is(err, transport.ErrNotFound):
		rw.WriteHeader(nethttp.StatusNotFound)
		return
	case errors.Is(err, transport.ErrTimeout):
		rw.WriteHeader(nethttp.StatusRequestTimeout)
		return
	case errors.Is(err, transport.ErrNotAuthorized):
		rw.WriteHeader(nethttp.StatusUnauthorized)
		return
	default:
		rw.Header().Set(headerPrefix+errorHeader, resMsg.ErrField.Error())
		rw.WriteHeader(nethttp.StatusInternalServerError)
		return
	}

	for name, value := range resMsg.HeadersField {
		rw.Header().Set(headerPrefix+name, value)
	}
	rw.Header().Set(headerPrefix+requestIDHeader, reqMsg.IDField)
	rw.WriteHeader(nethttp.StatusOK)
	rw.Write(resMsg.PayloadField)
}

// createClient builds the HTTP client. It must be called while holding the
// mutex.
func (t *Transport) createClient() error {
	cfg := t.config.Get()

	var tlsConfig *tls.Config
	switch protocol := cfg["protocol"]; protocol {
	case "http":
	case "https":
		var err error
		switch cfg["client/verifycert"] {
		case tlsVerifySkip:
			tlsConfig = &tls.Config{InsecureSkipVerify: true}
		case tlsVerifyAddToCertPool:
			tlsConfig, err = buildClientCertPool(cfg)
		default:
			err = errInvalidVerifyMode
		}
		if err != nil {
			t.client = nil
			return err
		}
	default:
		t.client = nil
		return fmt.Errorf("unsupported protocol %q", protocol)
	}

	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = &nethttp.Client{
		Transport: &nethttp.Transport{
			TLSClientConfig: tlsConfig,
		},
	}
	t.clientErr = nil
	return nil
}

func buildClientCertPool(cfg map[string]string) (*tls.Config, error) {
	certFile := cfg["tls/certificate"]
	if certFile == "" {
		return nil, errMissingCertificate
	}

	certPool, err := systemCertPool()
	if err != nil {
		return nil, err
	}

	certData, err := readFile(certFile)
	if err != nil {
		return nil, err
	}
	if !certPool.AppendCertsFromPEM(certData) {
		return nil, errAddCertificateToPool
	}

	return &tls.Config{RootCAs: certPool}, nil
}

// buildTLSConfig validates the server TLS settings and loads the certificate.
func buildTLSConfig(cfg map[string]string) (*tls.Config, error) {
	certFile, keyFile := cfg["tls/certificate"], cfg["tls/key"]
	if certFile == "" || keyFile == "" {
		return nil, errMissingCertificate
	}

	cert, err := loadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// extractHeaders returns the prefixed headers with the prefix stripped.
// Headers with empty values are skipped.
func extractHeaders(header nethttp.Header) map[string]string {
	headers := make(map[string]string)
	for name, values := range header {
		if !strings.HasPrefix(name, headerPrefix) || len(values) == 0 || values[0] == "" {
			continue
		}
		headers[name[len(headerPrefix):]] = values[0]
	}
	return headers
}

func init() {
	config.SetDefaults("transport/http", map[string]string{
		"protocol":          "http",
		"port":              "",
		"tls/certificate":   "",
		"tls/key":           "",
		"client/host":       "",
		"client/hostsuffix": "",
		"client/verifycert": tlsVerifyAddToCertPool,
	})
}
