package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeProvider_Success(t *testing.T) {
	var got bridgeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send-message", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"messageId":"wamid.1"}`))
	}))
	defer srv.Close()

	p := NewBridgeProvider("bridge", srv.URL, "", 1000, 3, 1000)
	res, err := p.Send(context.Background(), Outbound{Phone: "5511987654321", Text: "Oi Ana", SessionID: "user_42"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "wamid.1", res.MessageID)
	assert.Equal(t, bridgeRequest{Number: "5511987654321", Message: "Oi Ana", SessionID: "user_42"}, got)
}

func TestBridgeProvider_Refusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"WhatsApp não conectado"}`))
	}))
	defer srv.Close()

	p := NewBridgeProvider("bridge", srv.URL, "/send-message", 1000, 3, 1000)
	res, err := p.Send(context.Background(), Outbound{Phone: "55", Text: "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "WhatsApp não conectado", res.Error)
	assert.Equal(t, "closed", p.br.State())
}

func TestBridgeProvider_ServerErrorTripsBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewBridgeProvider("bridge", srv.URL, "", 1000, 2, 60000)
	for i := 0; i < 2; i++ {
		_, err := p.Send(context.Background(), Outbound{})
		require.Error(t, err)
	}
	assert.Equal(t, "open", p.br.State())
	assert.False(t, p.Ready())
}

func TestBridgeProvider_ServerErrorKeepsBridgeReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"Connection Closed"}`))
	}))
	defer srv.Close()

	p := NewBridgeProvider("bridge", srv.URL, "", 1000, 1, 60000)
	d := NewDispatcher([]Provider{p}, 1, time.Second)

	_, err := d.Send(context.Background(), Outbound{Phone: "5511987654321", Text: "Oi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBridgeDelivery)
	assert.Contains(t, err.Error(), "status=500: Connection Closed")
	assert.Contains(t, err.Error(), "breaker open", "threshold of one trips on the first failure")
}

func TestBridgeProvider_ClientTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	p := NewBridgeProvider("bridge", srv.URL, "", 50, 3, 1000)
	_, err := p.Send(context.Background(), Outbound{})
	assert.Error(t, err)
}

func TestMicroBreaker_HalfOpenSingleTrial(t *testing.T) {
	now := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)
	b := NewMicroBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.OnFailure()
	assert.False(t, b.TryAcquire())

	now = now.Add(2 * time.Minute)
	assert.True(t, b.TryAcquire())
	assert.Equal(t, "half-open", b.State())
	assert.False(t, b.TryAcquire(), "only one trial at a time")

	b.OnFailure()
	assert.Equal(t, "open", b.State())

	now = now.Add(2 * time.Minute)
	require.True(t, b.TryAcquire())
	b.OnSuccess()
	assert.Equal(t, "closed", b.State())
}

type fakeProvider struct {
	name  string
	calls int
	errs  []error
	res   SendResult
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Ready() bool   { return true }
func (f *fakeProvider) Acquire() bool { return true }
func (f *fakeProvider) Send(ctx context.Context, _ Outbound) (SendResult, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return SendResult{}, errors.New("attempt without deadline")
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return SendResult{}, err
	}
	return f.res, nil
}

func TestDispatcher_RetriesTransportErrors(t *testing.T) {
	p := &fakeProvider{errs: []error{errors.New("conn reset")}, res: SendResult{Success: true}}
	d := NewDispatcher([]Provider{p}, 2, time.Second)

	res, err := d.Send(context.Background(), Outbound{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, p.calls)
}

func TestDispatcher_RefusalNotRetried(t *testing.T) {
	p := &fakeProvider{res: SendResult{Success: false}}
	d := NewDispatcher([]Provider{p}, 3, time.Second)

	res, err := d.Send(context.Background(), Outbound{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, UnknownError, res.Error)
	assert.Equal(t, 1, p.calls)
}

func TestDispatcher_WrapsBridgeDelivery(t *testing.T) {
	d := NewDispatcher(nil, 1, time.Second)

	_, err := d.Send(context.Background(), Outbound{})
	assert.ErrorIs(t, err, ErrBridgeDelivery)
	assert.ErrorIs(t, err, ErrNoHealthy)
}

func TestDispatcher_RoundRobin(t *testing.T) {
	a := &fakeProvider{name: "a", res: SendResult{Success: true}}
	b := &fakeProvider{name: "b", res: SendResult{Success: true}}
	d := NewDispatcher([]Provider{a, b}, 1, time.Second)

	for i := 0; i < 4; i++ {
		_, err := d.Send(context.Background(), Outbound{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 2, b.calls)
}
