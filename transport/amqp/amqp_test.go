package amqp

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/achilleasa/katapayadi/config"
	"github.com/achilleasa/katapayadi/transport"
	amqpClient "github.com/streadway/amqp"
	"go.uber.org/goleak"
)

const testConfigVersion = 1000

// verifyNoLeaks checks for leaked goroutines after the test cleanup
// functions have run.
func verifyNoLeaks(t *testing.T) {
	opt := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, opt) })
}

func setURI(t *testing.T, uri string) {
	t.Helper()

	prev := config.Store.Get(uriConfigPath)["uri"]
	if _, err := config.Store.SetKey(testConfigVersion, uriConfigPath, uri); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		config.Store.SetKey(testConfigVersion, uriConfigPath, prev)
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newMessage(version, service, endpoint string, payload []byte) transport.Message {
	m := transport.MakeGenericMessage()
	m.SenderField = "cli"
	m.SenderEndpointField = "main"
	m.ReceiverField = service
	m.ReceiverEndpointField = endpoint
	m.ReceiverVersionField = version
	m.PayloadField = payload
	return m
}

func TestDialErrors(t *testing.T) {
	verifyNoLeaks(t)
	d := installMockDialer(t)

	expErr := errors.New("broker error")
	specs := []struct {
		descr     string
		configure func(d *mockDialer)
	}{
		{"dial", func(d *mockDialer) { d.dialErr = expErr }},
		{"exchange declare", func(d *mockDialer) { d.template.exchangeDeclareErr = expErr }},
		{"queue declare", func(d *mockDialer) { d.template.queueDeclareErr = expErr }},
		{"consume", func(d *mockDialer) { d.template.consumeErr = expErr }},
		{"queue bind", func(d *mockDialer) { d.template.queueBindErr = expErr }},
	}

	for _, spec := range specs {
		d.reset()
		spec.configure(d)

		tr := New()
		if err := tr.Bind("v1", "katapayadi", "encode", transport.HandlerFunc(func(transport.ImmutableMessage, transport.Message) {})); err != nil {
			t.Fatal(err)
		}

		if err := tr.Dial(transport.ModeServer); err != expErr {
			t.Errorf("[%s] expected error %v; got %v", spec.descr, expErr, err)
		}
		if err := tr.Close(transport.ModeServer); err != transport.ErrTransportClosed {
			t.Errorf("[%s] expected ErrTransportClosed; got %v", spec.descr, err)
		}

		tr.mutex.RLock()
		if tr.ch != nil || tr.uri != nil {
			t.Errorf("[%s] expected the transport to be disconnected after a failed dial", spec.descr)
		}
		tr.mutex.RUnlock()

		if mc := d.last(); mc != nil && mc.CloseCount() != 1 {
			t.Errorf("[%s] expected the amqp channel to be closed once; got %d", spec.descr, mc.CloseCount())
		}
	}
}

func TestBindAndUnbind(t *testing.T) {
	verifyNoLeaks(t)
	d := installMockDialer(t)

	tr := New()
	noop := transport.HandlerFunc(func(transport.ImmutableMessage, transport.Message) {})
	if err := tr.Bind("v1", "katapayadi", "encode", noop); err != nil {
		t.Fatal(err)
	}
	if err := tr.Bind("v1", "katapayadi", "encode", noop); err == nil {
		t.Fatal("expected an error when binding the same endpoint twice")
	}

	if err := tr.Dial(transport.ModeServer); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeServer)

	mc := d.last()
	if !mc.HasRoute("v1/katapayadi/encode") {
		t.Fatal("expected existing bindings to be bound to the request queue when dialing")
	}

	if err := tr.Bind("", "katapayadi", "decode", noop); err != nil {
		t.Fatal(err)
	}
	if !mc.HasRoute("/katapayadi/decode") {
		t.Fatal("expected new bindings to be bound to the request queue while dialed")
	}

	tr.Unbind("", "katapayadi", "decode")
	if mc.HasRoute("/katapayadi/decode") {
		t.Fatal("expected Unbind to remove the routing key from the request queue")
	}

	mc.SetQueueBindErr(errors.New("queue bind error"))
	if err := tr.Bind("", "katapayadi", "table", noop); err == nil {
		t.Fatal("expected the queue bind error to be returned")
	}
	tr.bindingsMutex.RLock()
	_, exists := tr.bindings["/katapayadi/table"]
	tr.bindingsMutex.RUnlock()
	if exists {
		t.Fatal("expected the failed binding not to be registered")
	}
}

func TestRoundTrip(t *testing.T) {
	verifyNoLeaks(t)
	d := installMockDialer(t)

	type captured struct {
		sender, senderEndpoint, receiver, receiverEndpoint, version, trace string
	}
	capturedChan := make(chan captured, 1)

	tr := New()
	err := tr.Bind("v1", "katapayadi", "encode", transport.HandlerFunc(func(req transport.ImmutableMessage, res transport.Message) {
		capturedChan <- captured{
			sender:           req.Sender(),
			senderEndpoint:   req.SenderEndpoint(),
			receiver:         req.Receiver(),
			receiverEndpoint: req.ReceiverEndpoint(),
			version:          req.ReceiverVersion(),
			trace:            req.Headers()["Trace"],
		}
		payload, _ := req.Payload()
		res.SetHeader("digits", "1")
		res.SetPayload(append([]byte("encoded:"), payload...), nil)
	}))
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Dial(transport.ModeServer); err != nil {
		t.Fatal(err)
	}
	if err := tr.Dial(transport.ModeClient); err != nil {
		t.Fatal(err)
	}

	req := newMessage("v1", "katapayadi", "encode", []byte("ka"))
	req.SetHeader("trace", "abc")
	res := <-tr.Request(req)

	payload, err := res.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "encoded:ka" {
		t.Fatalf("unexpected payload %q", payload)
	}
	if res.Headers()["Digits"] != "1" {
		t.Fatalf("expected response headers to be relayed; got %v", res.Headers())
	}
	if res.Sender() != "katapayadi" || res.SenderEndpoint() != "encode" || res.Receiver() != "cli" || res.ReceiverEndpoint() != "main" {
		t.Fatalf("unexpected response addressing: %s/%s -> %s/%s", res.Sender(), res.SenderEndpoint(), res.Receiver(), res.ReceiverEndpoint())
	}

	got := <-capturedChan
	exp := captured{"cli", "main", "katapayadi", "encode", "v1", "abc"}
	if got != exp {
		t.Fatalf("expected handler to receive %+v; got %+v", exp, got)
	}

	mc := d.last()
	pub := mc.Published()[0]
	if pub.exchange != exchangeName || pub.key != "v1/katapayadi/encode" || !pub.mandatory {
		t.Fatalf("unexpected request publication: %+v", pub)
	}
	if pub.msg.CorrelationId != req.ID() || pub.msg.AppId != "cli" || pub.msg.Type != "main" || pub.msg.ReplyTo == "" {
		t.Fatalf("unexpected request properties: %+v", pub.msg)
	}

	req.Close()
	res.Close()

	if err := tr.Close(transport.ModeClient); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(transport.ModeServer); err != nil {
		t.Fatal(err)
	}

	if acks := mc.AckCount(); acks != 1 {
		t.Fatalf("expected 1 ack; got %d", acks)
	}
}

func TestErrorMapping(t *testing.T) {
	verifyNoLeaks(t)
	installMockDialer(t)

	handlerErrors := map[string]error{
		"timeout":      transport.ErrTimeout,
		"unauthorized": transport.ErrNotAuthorized,
		"custom":       errors.New("input too long"),
	}

	tr := New()
	err := tr.Bind("", "katapayadi", "encode", transport.HandlerFunc(func(req transport.ImmutableMessage, res transport.Message) {
		payload, _ := req.Payload()
		res.SetPayload(nil, handlerErrors[string(payload)])
	}))
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Dial(transport.ModeServer); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeServer)
	if err := tr.Dial(transport.ModeClient); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeClient)

	for payload, expErr := range handlerErrors {
		res := <-tr.Request(newMessage("", "katapayadi", "encode", []byte(payload)))
		_, err := res.Payload()
		if err == nil || err.Error() != expErr.Error() {
			t.Errorf("[%s] expected error %v; got %v", payload, expErr, err)
		}
		if transport.KnownError(expErr.Error()) != nil && err != expErr {
			t.Errorf("[%s] expected the delivery error to be mapped back to %v", payload, expErr)
		}
	}

	// Requests that the broker cannot route are returned to the client.
	res := <-tr.Request(newMessage("", "katapayadi", "unknown", nil))
	if _, err := res.Payload(); err != transport.ErrServiceUnavailable {
		t.Fatalf("expected ErrServiceUnavailable; got %v", err)
	}
}

func TestUnknownRoutingKey(t *testing.T) {
	verifyNoLeaks(t)
	d := installMockDialer(t)

	tr := New()
	if err := tr.Dial(transport.ModeServer); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeServer)

	mc := d.last()
	replyQueue, _ := mc.QueueDeclare("", false, true, true, false, nil)
	replies, _ := mc.Consume(replyQueue.Name, "test", true, true, false, false, nil)

	tr.mutex.RLock()
	requestQueue := tr.requestQueue
	tr.mutex.RUnlock()

	mc.Inject(requestQueue, amqpClient.Delivery{
		RoutingKey:    "/katapayadi/unknown",
		CorrelationId: "req-1",
		ReplyTo:       replyQueue.Name,
		ContentType:   contentTypeData,
	})

	select {
	case reply := <-replies:
		if reply.CorrelationId != "req-1" || reply.ContentType != contentTypeError || string(reply.Body) != transport.ErrNotFound.Error() {
			t.Fatalf("unexpected reply: %+v", reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestRequestErrors(t *testing.T) {
	verifyNoLeaks(t)
	d := installMockDialer(t)

	tr := New()
	res := <-tr.Request(newMessage("", "katapayadi", "encode", nil))
	if _, err := res.Payload(); err != transport.ErrTransportClosed {
		t.Fatalf("expected ErrTransportClosed; got %v", err)
	}

	if err := tr.Dial(transport.ModeClient); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeClient)

	expErr := errors.New("publish error")
	d.last().SetPublishErr(expErr)
	res = <-tr.Request(newMessage("", "katapayadi", "encode", nil))
	if _, err := res.Payload(); err != expErr {
		t.Fatalf("expected the publish error; got %v", err)
	}
}

func TestReturnedMessages(t *testing.T) {
	specs := []struct {
		replyCode uint16
		expErr    error
	}{
		{replyCodeNoRoute, transport.ErrServiceUnavailable},
		{replyCodeNoConsumers, transport.ErrServiceUnavailable},
		{replyCodeNotFound, transport.ErrNotFound},
		{replyCodeNotAuthorized, transport.ErrNotAuthorized},
		{500, transport.ErrServiceUnavailable},
	}

	for _, spec := range specs {
		if err := returnError(spec.replyCode); err != spec.expErr {
			t.Errorf("[code %d] expected %v; got %v", spec.replyCode, spec.expErr, err)
		}
	}
}

func TestDecodeResponse(t *testing.T) {
	specs := []struct {
		delivery   amqpClient.Delivery
		expPayload string
		expErr     string
	}{
		{amqpClient.Delivery{ContentType: contentTypeData, Body: []byte("7")}, "7", ""},
		{amqpClient.Delivery{ContentType: contentTypeError}, "", "unknown error"},
		{amqpClient.Delivery{ContentType: contentTypeError, Body: []byte("boom")}, "", "boom"},
		{amqpClient.Delivery{ContentType: contentTypeError, Body: []byte(transport.ErrTimeout.Error())}, "", transport.ErrTimeout.Error()},
	}

	for index, spec := range specs {
		spec.delivery.Headers = amqpClient.Table{"trace": "abc", "ignored": 42}

		res := transport.MakeGenericMessage()
		decodeResponse(&spec.delivery, res)

		payload, err := res.Payload()
		if string(payload) != spec.expPayload {
			t.Errorf("[spec %d] expected payload %q; got %q", index, spec.expPayload, payload)
		}
		switch {
		case spec.expErr == "" && err != nil:
			t.Errorf("[spec %d] unexpected error %v", index, err)
		case spec.expErr != "" && (err == nil || err.Error() != spec.expErr):
			t.Errorf("[spec %d] expected error %q; got %v", index, spec.expErr, err)
		}
		if len(res.Headers()) != 1 || res.Headers()["Trace"] != "abc" {
			t.Errorf("[spec %d] expected only string headers to be decoded; got %v", index, res.Headers())
		}
		res.Close()
	}

	res := transport.MakeGenericMessage()
	decodeResponse(&amqpClient.Delivery{ContentType: contentTypeError, Body: []byte(transport.ErrNotFound.Error())}, res)
	if _, err := res.Payload(); err != transport.ErrNotFound {
		t.Fatalf("expected ErrNotFound; got %v", err)
	}
}

func TestRefCounting(t *testing.T) {
	verifyNoLeaks(t)
	d := installMockDialer(t)

	tr := New()
	for i := 0; i < 2; i++ {
		if err := tr.Dial(transport.ModeServer); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.Dial(transport.ModeClient); err != nil {
		t.Fatal(err)
	}

	if count := d.DialCount(); count != 1 {
		t.Fatalf("expected the connection to be shared; got %d dials", count)
	}

	if err := tr.Close(transport.ModeServer); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(transport.ModeClient); err != nil {
		t.Fatal(err)
	}

	mc, conn := d.last(), d.lastConn()
	if mc.CloseCount() != 0 || conn.CloseCount() != 0 {
		t.Fatal("expected the connection to remain open while the server side is dialed")
	}

	if err := tr.Close(transport.ModeServer); err != nil {
		t.Fatal(err)
	}
	if mc.CloseCount() != 1 || conn.CloseCount() != 1 {
		t.Fatal("expected the connection to be closed when both sides are closed")
	}

	if err := tr.Close(transport.ModeServer); err != transport.ErrTransportClosed {
		t.Fatalf("expected ErrTransportClosed; got %v", err)
	}
	if err := tr.Close(transport.ModeClient); err != transport.ErrTransportClosed {
		t.Fatalf("expected ErrTransportClosed; got %v", err)
	}
}

func TestRedialOnConnectionError(t *testing.T) {
	verifyNoLeaks(t)
	d := installMockDialer(t)

	tr := New()
	if err := tr.Dial(transport.ModeClient); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeClient)

	// Route requests to a queue that nobody answers so that they stay pending.
	mc := d.last()
	sink, _ := mc.QueueDeclare("", false, true, true, false, nil)
	mc.Consume(sink.Name, "sink", true, false, false, false, nil)
	mc.QueueBind(sink.Name, "/katapayadi/encode", exchangeName, false, nil)

	req := newMessage("", "katapayadi", "encode", nil)
	defer req.Close()
	resChan := tr.Request(req)
	waitFor(t, "request to be published", func() bool { return len(mc.Published()) == 1 })

	d.lastConnClosed() <- &amqpClient.Error{Code: 320, Reason: "connection forced"}

	select {
	case res := <-resChan:
		if _, err := res.Payload(); err != transport.ErrServiceUnavailable {
			t.Fatalf("expected pending requests to fail with ErrServiceUnavailable; got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the pending request to fail")
	}

	waitFor(t, "transport to redial", func() bool { return d.DialCount() == 2 })
	waitFor(t, "client worker to restart", func() bool {
		tr.mutex.RLock()
		defer tr.mutex.RUnlock()
		return tr.ch == d.last() && tr.outgoing != nil
	})

	if mc.CloseCount() != 1 {
		t.Fatal("expected the failed channel to be closed")
	}
}

func TestRedialOnURIChange(t *testing.T) {
	verifyNoLeaks(t)
	d := installMockDialer(t)
	setURI(t, "amqp://first")

	tr := New()
	err := tr.Bind("", "katapayadi", "encode", transport.HandlerFunc(func(_ transport.ImmutableMessage, res transport.Message) {
		res.SetPayload([]byte("ok"), nil)
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Dial(transport.ModeServer); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeServer)
	if err := tr.Dial(transport.ModeClient); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeClient)

	request := func() error {
		req := newMessage("", "katapayadi", "encode", nil)
		defer req.Close()
		res := <-tr.Request(req)
		defer res.Close()
		_, err := res.Payload()
		return err
	}

	// A failed redial leaves the transport disconnected.
	d.SetDialErr(errors.New("connection refused"))
	setURI(t, "amqp://second")
	waitFor(t, "failed redial", func() bool {
		tr.mutex.RLock()
		defer tr.mutex.RUnlock()
		return d.DialCount() == 2 && tr.ch == nil
	})
	if err := request(); err != transport.ErrServiceUnavailable {
		t.Fatalf("expected ErrServiceUnavailable while disconnected; got %v", err)
	}

	d.SetDialErr(nil)
	setURI(t, "amqp://third")
	waitFor(t, "successful redial", func() bool {
		tr.mutex.RLock()
		defer tr.mutex.RUnlock()
		return tr.ch != nil && tr.outgoing != nil && tr.serverStop != nil
	})

	if err := request(); err != nil {
		t.Fatalf("expected request to succeed after redialing; got %v", err)
	}

	expURIs := []string{"amqp://first", "amqp://second", "amqp://third"}
	if uris := d.URIs(); fmt.Sprint(uris) != fmt.Sprint(expURIs) {
		t.Fatalf("expected dialed uris %v; got %v", expURIs, uris)
	}
}

func TestCloseWaitsForInFlightRequests(t *testing.T) {
	verifyNoLeaks(t)
	installMockDialer(t)

	started := make(chan struct{})
	release := make(chan struct{})

	tr := New()
	err := tr.Bind("", "katapayadi", "encode", transport.HandlerFunc(func(_ transport.ImmutableMessage, res transport.Message) {
		close(started)
		<-release
		res.SetPayload([]byte("ok"), nil)
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Dial(transport.ModeServer); err != nil {
		t.Fatal(err)
	}
	if err := tr.Dial(transport.ModeClient); err != nil {
		t.Fatal(err)
	}
	defer tr.Close(transport.ModeClient)

	req := newMessage("", "katapayadi", "encode", nil)
	defer req.Close()
	resChan := tr.Request(req)
	<-started

	closed := make(chan struct{})
	go func() {
		tr.Close(transport.ModeServer)
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("expected Close to wait for the in-flight request")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed
	<-resChan
}

func TestFactories(t *testing.T) {
	if SingletonFactory() != SingletonFactory() {
		t.Fatal("expected SingletonFactory to return the same instance")
	}
	if Factory() == Factory() {
		t.Fatal("expected Factory to return new instances")
	}
}

// mockDialer replaces dialAndGetChan with a function that returns in-process
// brokers.
type mockDialer struct {
	mutex      sync.Mutex
	dialErr    error
	template   mockChannel
	uris       []string
	channels   []*mockChannel
	conns      []*mockConn
	connClosed []chan *amqpClient.Error
}

func installMockDialer(t *testing.T) *mockDialer {
	d := &mockDialer{}
	orig := dialAndGetChan
	dialAndGetChan = d.dial
	t.Cleanup(func() { dialAndGetChan = orig })
	return d
}

func (d *mockDialer) dial(uri string) (amqpChannel, io.Closer, chan *amqpClient.Error, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.uris = append(d.uris, uri)
	if d.dialErr != nil {
		return nil, nil, nil, d.dialErr
	}

	mc := newMockChannel()
	mc.exchangeDeclareErr = d.template.exchangeDeclareErr
	mc.queueDeclareErr = d.template.queueDeclareErr
	mc.queueBindErr = d.template.queueBindErr
	mc.consumeErr = d.template.consumeErr

	conn := &mockConn{}
	connClosed := make(chan *amqpClient.Error, 1)
	d.channels = append(d.channels, mc)
	d.conns = append(d.conns, conn)
	d.connClosed = append(d.connClosed, connClosed)
	return mc, conn, connClosed, nil
}

func (d *mockDialer) reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.dialErr = nil
	d.template = mockChannel{}
	d.uris, d.channels, d.conns, d.connClosed = nil, nil, nil, nil
}

func (d *mockDialer) SetDialErr(err error) {
	d.mutex.Lock()
	d.dialErr = err
	d.mutex.Unlock()
}

func (d *mockDialer) DialCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.uris)
}

func (d *mockDialer) URIs() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]string(nil), d.uris...)
}

func (d *mockDialer) last() *mockChannel {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

func (d *mockDialer) lastConn() *mockConn {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *mockDialer) lastConnClosed() chan *amqpClient.Error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connClosed[len(d.connClosed)-1]
}

type mockConn struct {
	mutex      sync.Mutex
	closeCount int
}

func (c *mockConn) Close() error {
	c.mutex.Lock()
	c.closeCount++
	c.mutex.Unlock()
	return nil
}

func (c *mockConn) CloseCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closeCount
}

type publication struct {
	exchange  string
	key       string
	mandatory bool
	msg       amqpClient.Publishing
}

// mockChannel emulates a broker with a single direct exchange. Published
// messages are delivered to the consumer of the queue bound to their routing
// key; unroutable mandatory messages are returned.
type mockChannel struct {
	mutex sync.Mutex

	exchangeDeclareErr error
	queueDeclareErr    error
	queueBindErr       error
	consumeErr         error
	publishErr         error

	nextQueue   int
	nextTag     uint64
	routes      map[string]string
	consumers   map[string]string
	deliveries  map[string]chan amqpClient.Delivery
	returns     chan amqpClient.Return
	published   []publication
	ackCount    int
	nackCount   int
	rejectCount int
	closeCount  int
}

func newMockChannel() *mockChannel {
	return &mockChannel{
		routes:     make(map[string]string),
		consumers:  make(map[string]string),
		deliveries: make(map[string]chan amqpClient.Delivery),
	}
}

func (mc *mockChannel) Ack(uint64, bool) error {
	mc.mutex.Lock()
	mc.ackCount++
	mc.mutex.Unlock()
	return nil
}

func (mc *mockChannel) Nack(uint64, bool, bool) error {
	mc.mutex.Lock()
	mc.nackCount++
	mc.mutex.Unlock()
	return nil
}

func (mc *mockChannel) Reject(uint64, bool) error {
	mc.mutex.Lock()
	mc.rejectCount++
	mc.mutex.Unlock()
	return nil
}

func (mc *mockChannel) NotifyReturn(c chan amqpClient.Return) chan amqpClient.Return {
	mc.mutex.Lock()
	mc.returns = c
	mc.mutex.Unlock()
	return c
}

func (mc *mockChannel) Publish(exchange, key string, mandatory, _ bool, msg amqpClient.Publishing) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if mc.closeCount > 0 {
		return amqpClient.ErrClosed
	}
	if mc.publishErr != nil {
		return mc.publishErr
	}
	mc.published = append(mc.published, publication{exchange, key, mandatory, msg})

	queue := key
	if exchange != "" {
		var bound bool
		if queue, bound = mc.routes[key]; !bound {
			mc.returnLocked(replyCodeNoRoute, key, msg)
			return nil
		}
	}

	deliveries, exists := mc.deliveries[queue]
	if !exists {
		mc.returnLocked(replyCodeNoConsumers, key, msg)
		return nil
	}

	mc.nextTag++
	mc.sendLocked(deliveries, amqpClient.Delivery{
		Acknowledger:  mc,
		DeliveryTag:   mc.nextTag,
		Exchange:      exchange,
		RoutingKey:    key,
		Headers:       msg.Headers,
		ContentType:   msg.ContentType,
		CorrelationId: msg.CorrelationId,
		ReplyTo:       msg.ReplyTo,
		AppId:         msg.AppId,
		Type:          msg.Type,
		Body:          msg.Body,
	})
	return nil
}

func (mc *mockChannel) returnLocked(replyCode uint16, key string, msg amqpClient.Publishing) {
	if mc.returns == nil {
		return
	}
	select {
	case mc.returns <- amqpClient.Return{ReplyCode: replyCode, RoutingKey: key, CorrelationId: msg.CorrelationId}:
	default:
	}
}

func (mc *mockChannel) sendLocked(deliveries chan amqpClient.Delivery, delivery amqpClient.Delivery) {
	select {
	case deliveries <- delivery:
	default:
	}
}

// Inject delivers a message straight to a queue.
func (mc *mockChannel) Inject(queue string, delivery amqpClient.Delivery) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	delivery.Acknowledger = mc
	if deliveries, exists := mc.deliveries[queue]; exists {
		mc.sendLocked(deliveries, delivery)
	}
}

func (mc *mockChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqpClient.Table) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return mc.exchangeDeclareErr
}

func (mc *mockChannel) QueueDeclare(string, bool, bool, bool, bool, amqpClient.Table) (amqpClient.Queue, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if mc.queueDeclareErr != nil {
		return amqpClient.Queue{}, mc.queueDeclareErr
	}
	mc.nextQueue++
	return amqpClient.Queue{Name: fmt.Sprintf("amq.gen-%d", mc.nextQueue)}, nil
}

func (mc *mockChannel) QueueBind(name, key, _ string, _ bool, _ amqpClient.Table) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if mc.queueBindErr != nil {
		return mc.queueBindErr
	}
	mc.routes[key] = name
	return nil
}

func (mc *mockChannel) QueueUnbind(name, key, _ string, _ amqpClient.Table) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if mc.routes[key] == name {
		delete(mc.routes, key)
	}
	return nil
}

func (mc *mockChannel) Consume(queue, consumer string, _, _, _, _ bool, _ amqpClient.Table) (<-chan amqpClient.Delivery, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if mc.consumeErr != nil {
		return nil, mc.consumeErr
	}
	deliveries := make(chan amqpClient.Delivery, 64)
	mc.consumers[consumer] = queue
	mc.deliveries[queue] = deliveries
	return deliveries, nil
}

func (mc *mockChannel) Cancel(consumer string, _ bool) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	queue, exists := mc.consumers[consumer]
	if !exists {
		return nil
	}
	close(mc.deliveries[queue])
	delete(mc.deliveries, queue)
	delete(mc.consumers, consumer)
	return nil
}

func (mc *mockChannel) Close() error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.closeCount++
	if mc.closeCount > 1 {
		return amqpClient.ErrClosed
	}

	for consumer, queue := range mc.consumers {
		close(mc.deliveries[queue])
		delete(mc.deliveries, queue)
		delete(mc.consumers, consumer)
	}
	if mc.returns != nil {
		close(mc.returns)
		mc.returns = nil
	}
	return nil
}

func (mc *mockChannel) SetPublishErr(err error) {
	mc.mutex.Lock()
	mc.publishErr = err
	mc.mutex.Unlock()
}

func (mc *mockChannel) SetQueueBindErr(err error) {
	mc.mutex.Lock()
	mc.queueBindErr = err
	mc.mutex.Unlock()
}

func (mc *mockChannel) HasRoute(key string) bool {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	_, exists := mc.routes[key]
	return exists
}

func (mc *mockChannel) Published() []publication {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return append([]publication(nil), mc.published...)
}

func (mc *mockChannel) AckCount() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return mc.ackCount
}

func (mc *mockChannel) CloseCount() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return mc.closeCount
}
