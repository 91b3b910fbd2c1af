package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/achilleasa/katapayadi/client"
	"github.com/achilleasa/katapayadi/config/store"
	"github.com/achilleasa/katapayadi/encoding"
	"github.com/achilleasa/katapayadi/encoding/gob"
	"github.com/achilleasa/katapayadi/encoding/json"
	"github.com/achilleasa/katapayadi/encoding/msgpack"
	"github.com/achilleasa/katapayadi/server"
	"github.com/achilleasa/katapayadi/transcoder"
	"github.com/achilleasa/katapayadi/transport"
	"github.com/achilleasa/katapayadi/transport/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// verifyNoLeaks checks for leaked goroutines after the test cleanup
// functions have run.
func verifyNoLeaks(t *testing.T) {
	opt := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, opt) })
}

// startService runs svc on a memory transport and returns a client for it.
// Both are closed when the test completes.
func startService(t *testing.T, svc *Service, codec encoding.Codec) *Client {
	t.Helper()

	tr := memory.New()
	srv, err := server.New(Name, server.WithTransport(tr), server.WithCodec(codec))
	require.NoError(t, err)
	require.NoError(t, svc.Register(srv))
	require.NoError(t, srv.Start())

	c, err := NewClient(client.WithTransport(tr), client.WithCodec(codec))
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		srv.Close()
		svc.Close()
	})
	return c
}

func newStore(t *testing.T, values map[string]string) *store.Store {
	var s store.Store
	if len(values) != 0 {
		_, err := s.SetKeys(1, "", values)
		require.NoError(t, err)
	}
	t.Cleanup(s.Reset)
	return &s
}

func TestEndpoints(t *testing.T) {
	codecs := map[string]encoding.Codec{
		"json":    json.Codec(),
		"gob":     gob.Codec(),
		"msgpack": msgpack.Codec(),
	}

	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			verifyNoLeaks(t)
			svc := New(transcoder.New(), WithStore(newStore(t, nil)))
			c := startService(t, svc, codec)
			ctx := context.Background()

			enc, err := c.Encode(ctx, "कखग", 0)
			require.NoError(t, err)
			assert.Equal(t, &EncodeResponse{Encoded: "123", Original: "कखग", Key: 0}, enc)

			enc, err = c.Encode(ctx, "क अ ख", 9)
			require.NoError(t, err)
			assert.Equal(t, "01", enc.Encoded)
			assert.Equal(t, 9, enc.Key)

			dec, err := c.Decode(ctx, "123", 0)
			require.NoError(t, err)
			assert.Equal(t, &DecodeResponse{Decoded: "कखग", Original: "123", Key: 0}, dec)

			dec, err = c.Decode(ctx, "", 3)
			require.NoError(t, err)
			assert.Equal(t, "", dec.Decoded)

			candidates, err := c.Candidates(ctx, "1 2", 1)
			require.NoError(t, err)
			assert.Equal(t, [][]string{
				{"ञ", "न", "क्ष", "ज्ञ"},
				{"क", "ट", "प", "य"},
			}, candidates)
		})
	}
}

func TestInputTooLong(t *testing.T) {
	verifyNoLeaks(t)
	svc := New(transcoder.New(), WithStore(newStore(t, nil)), WithMaxInputLen(3))
	c := startService(t, svc, json.Codec())
	ctx := context.Background()

	_, err := c.Encode(ctx, "कखगघ", 0)
	require.True(t, errors.Is(err, ErrInputTooLong), "got %v", err)

	_, err = c.Decode(ctx, "1234", 0)
	require.True(t, errors.Is(err, ErrInputTooLong), "got %v", err)

	_, err = c.Candidates(ctx, "1234", 0)
	require.True(t, errors.Is(err, ErrInputTooLong), "got %v", err)

	// The limit counts runes, not bytes.
	_, err = c.Encode(ctx, "कखग", 0)
	require.NoError(t, err)
}

func TestMaxInputLenFromConfig(t *testing.T) {
	verifyNoLeaks(t)
	s := newStore(t, map[string]string{"service/maxinputlen": "2"})
	svc := New(transcoder.New(), WithStore(s))
	c := startService(t, svc, json.Codec())
	ctx := context.Background()

	_, err := c.Decode(ctx, "123", 0)
	require.True(t, errors.Is(err, ErrInputTooLong), "got %v", err)

	_, err = s.SetKey(2, "service/maxinputlen", "5")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := c.Decode(ctx, "123", 0)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConcurrencyLimit(t *testing.T) {
	verifyNoLeaks(t)
	s := newStore(t, map[string]string{
		"service/maxconcurrent":  "1",
		"service/acquiretimeout": "20ms",
	})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	blocker := func(next server.Middleware) server.Middleware {
		return server.MiddlewareFunc(func(ctx context.Context, req transport.ImmutableMessage, res transport.Message) {
			if payload, _ := req.Payload(); string(payload) == `{"text":"block","key":0}` {
				started <- struct{}{}
				<-release
			}
			next.Handle(ctx, req, res)
		})
	}

	svc := New(transcoder.New(), WithStore(s), WithMiddleware(blocker))
	c := startService(t, svc, json.Codec())
	ctx := context.Background()

	blocked := make(chan error, 1)
	go func() {
		_, err := c.Encode(ctx, "block", 0)
		blocked <- err
	}()
	<-started

	// The slot is shared between all endpoints.
	_, err := c.Decode(ctx, "1", 0)
	require.Equal(t, transport.ErrTimeout, err)

	close(release)
	require.NoError(t, <-blocked)

	_, err = c.Decode(ctx, "1", 0)
	require.NoError(t, err)
}

func TestNewTranscoderFromConfig(t *testing.T) {
	require.False(t, NewTranscoder(newStore(t, nil)).MatchesClusters())
	require.True(t, NewTranscoder(newStore(t, map[string]string{"transcoder/clusters": "true"})).MatchesClusters())

	svc := New(nil, WithStore(newStore(t, map[string]string{"transcoder/clusters": "true"})))
	defer svc.Close()

	var res EncodeResponse
	require.NoError(t, svc.Encode(context.Background(), &EncodeRequest{Text: "क्ष", Key: 3}, &res))
	require.Equal(t, "3", res.Encoded)
}

func TestDigitCandidates(t *testing.T) {
	assert.Equal(t, [][]string{}, DigitCandidates("", 0))
	assert.Equal(t, [][]string{}, DigitCandidates("abc", 0))
	assert.Equal(t, [][]string{{"झ", "ध", "ळ"}}, DigitCandidates("0", 1))
	assert.Equal(t, [][]string{{"झ", "ध", "ळ"}}, DigitCandidates("8", -1))

	// Extreme keys agree with Decode.
	for _, key := range []int{math.MinInt, math.MinInt + 1, math.MaxInt, math.MaxInt - 1} {
		for _, digit := range "0123456789" {
			got := DigitCandidates(string(digit), key)
			require.Len(t, got, 1)
			assert.Equal(t, transcoder.Decode(string(digit), key), got[0][0], "digit %c, key %d", digit, key)
		}
	}
	assert.Equal(t, transcoder.Candidates(8), DigitCandidates("0", math.MinInt)[0])
}

func TestZeroMaxInputLenUsesDefault(t *testing.T) {
	svc := New(transcoder.New(), WithStore(newStore(t, nil)), WithMaxInputLen(0))
	defer svc.Close()
	ctx := context.Background()

	var res DecodeResponse
	require.NoError(t, svc.Decode(ctx, &DecodeRequest{Numbers: strings.Repeat("1", DefaultMaxInputLen)}, &res))

	err := svc.Decode(ctx, &DecodeRequest{Numbers: strings.Repeat("1", DefaultMaxInputLen+1)}, &res)
	require.True(t, errors.Is(err, ErrInputTooLong), "got %v", err)
}

func TestRemoteError(t *testing.T) {
	err := remoteError(errors.New("input too long: 5 runes exceeds the limit of 4"))
	require.True(t, errors.Is(err, ErrInputTooLong))
	require.Equal(t, "input too long: 5 runes exceeds the limit of 4", err.Error())

	require.Equal(t, ErrInputTooLong, remoteError(errors.New("input too long")))
	require.Equal(t, transport.ErrNotFound, remoteError(transport.ErrNotFound))
}
