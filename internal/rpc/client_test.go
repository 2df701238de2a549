package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/signer"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int
	failures int
	onSubmit func(token string)
	onMsg    func(msg protocol.Message)
}

func (f *fakeSubmitter) Submit(ctx context.Context, env protocol.SignedEnvelope, target string) (protocol.Ack, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	onSubmit := f.onSubmit
	onMsg := f.onMsg
	f.mu.Unlock()

	if fail {
		return protocol.Ack{}, errors.New("connection refused")
	}

	msg, err := protocol.NewCodec().DecodeMessage(env.Payload)
	if err != nil {
		return protocol.Ack{}, err
	}
	if onMsg != nil {
		onMsg(msg)
	}
	if onSubmit != nil {
		onSubmit(msg.Tag(protocol.TagReference))
	}
	return protocol.Ack{ID: env.ID, Timestamp: 1}, nil
}

func (f *fakeSubmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, sub Submitter, replyTimeout time.Duration) (*Client, *sleepRecorder) {
	t.Helper()

	key, err := signer.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	s, err := signer.NewEd25519Signer(key)
	if err != nil {
		t.Fatalf("NewEd25519Signer failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Process = "process-1"
	cfg.ReplyTimeout = replyTimeout

	rec := &sleepRecorder{}
	c, err := New(Options{
		Config:    cfg,
		Signer:    s,
		Submitter: sub,
		Logger:    logger.Discard(),
		Sleep:     rec.Sleep,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, rec
}

func TestCallResolvesWithReply(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, 2*time.Second)

	sub.onSubmit = func(token string) {
		go func() {
			time.Sleep(200 * time.Millisecond)
			c.Correlator().Resolve(protocol.Event{
				ID:        "ev-1",
				Action:    "GetContactsResult",
				Reference: token,
				Data:      []byte(`{"success":true,"data":{"contacts":[{"address":"addr-b"}]}}`),
			})
		}()
	}

	res := c.Call(context.Background(), protocol.ActionGetContacts, nil, "")
	if !res.Success {
		t.Fatalf("Expected success, got %q", res.Error)
	}
	if string(res.Data) != `{"contacts":[{"address":"addr-b"}]}` {
		t.Errorf("Unexpected data %s", res.Data)
	}
	if sub.Calls() != 1 {
		t.Errorf("Expected 1 submission, got %d", sub.Calls())
	}
	if c.Correlator().Pending() != 0 {
		t.Errorf("Expected 0 pending waits, got %d", c.Correlator().Pending())
	}
}

func TestCallTimesOutAfterRetries(t *testing.T) {
	sub := &fakeSubmitter{}
	c, rec := newTestClient(t, sub, 20*time.Millisecond)

	res := c.Call(context.Background(), protocol.ActionGetContacts, nil, "")
	if res.Success {
		t.Fatal("Expected failure")
	}
	if res.Error != "Timeout" {
		t.Errorf("Expected error Timeout, got %q", res.Error)
	}
	if sub.Calls() != 4 {
		t.Errorf("Expected 4 submissions, got %d", sub.Calls())
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if fmt.Sprint(rec.delays) != fmt.Sprint(expected) {
		t.Errorf("Expected delays %v, got %v", expected, rec.delays)
	}
	if c.Correlator().Pending() != 0 {
		t.Errorf("Expected 0 pending waits, got %d", c.Correlator().Pending())
	}
}

func TestCallDiscardsLateReply(t *testing.T) {
	var token string
	sub := &fakeSubmitter{onSubmit: func(tok string) { token = tok }}
	c, _ := newTestClient(t, sub, 10*time.Millisecond)

	res := c.Call(context.Background(), protocol.ActionGetContacts, nil, "", WithMaxRetries(0))
	if res.Code != protocol.ErrTimeout {
		t.Fatalf("Expected Timeout, got %s", res.Code)
	}

	if c.Correlator().Resolve(protocol.Event{Action: "GetContactsResult", Reference: token, Data: []byte(`{}`)}) {
		t.Error("Expected late reply to be discarded")
	}
}

func TestCallFireAndForget(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)

	res := c.Call(context.Background(), protocol.ActionSendInvitation, map[string]any{"to": "addr-b", "nickname": "bob"}, "")
	if !res.Success {
		t.Fatalf("Expected success, got %q", res.Error)
	}

	var ack protocol.Ack
	if err := res.Into(&ack); err != nil {
		t.Fatalf("Into failed: %v", err)
	}
	if ack.ID == "" {
		t.Error("Expected acknowledgement id")
	}
	if c.Correlator().Pending() != 0 {
		t.Errorf("Expected no pending wait, got %d", c.Correlator().Pending())
	}
}

func TestCallRetriesSubmissionFailure(t *testing.T) {
	sub := &fakeSubmitter{failures: 3}
	c, rec := newTestClient(t, sub, time.Second)

	res := c.Call(context.Background(), protocol.ActionSend, map[string]any{"content": "hi"}, "room-1")
	if !res.Success {
		t.Fatalf("Expected success after 3 retries, got %q", res.Error)
	}
	if sub.Calls() != 4 {
		t.Errorf("Expected 4 submissions, got %d", sub.Calls())
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if fmt.Sprint(rec.delays) != fmt.Sprint(expected) {
		t.Errorf("Expected delays %v, got %v", expected, rec.delays)
	}
}

func TestCallSubmissionFailureExhausted(t *testing.T) {
	sub := &fakeSubmitter{failures: 10}
	c, _ := newTestClient(t, sub, time.Second)

	res := c.Call(context.Background(), protocol.ActionSend, nil, "room-1")
	if res.Code != protocol.ErrSubmissionFailure {
		t.Errorf("Expected SubmissionFailure, got %s (%s)", res.Code, res.Error)
	}
	if sub.Calls() != 4 {
		t.Errorf("Expected 4 submissions, got %d", sub.Calls())
	}
}

func TestCallSignerUnavailableIsFatal(t *testing.T) {
	sub := &fakeSubmitter{}
	c, err := New(Options{Config: DefaultConfig(), Submitter: sub, Signer: signer.Unavailable{}, Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := c.Call(context.Background(), protocol.ActionGetContacts, nil, "process-1")
	if res.Code != protocol.ErrSignerUnavailable {
		t.Errorf("Expected SignerUnavailable, got %s", res.Code)
	}
	if sub.Calls() != 0 {
		t.Errorf("Expected no submissions, got %d", sub.Calls())
	}
}

func TestCallCancelledBeforeSigning(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Call(ctx, protocol.ActionGetContacts, nil, "")
	if res.Code != protocol.ErrCancelled {
		t.Errorf("Expected Cancelled, got %s (%s)", res.Code, res.Error)
	}
	if sub.Calls() != 0 {
		t.Errorf("Expected no submissions, got %d", sub.Calls())
	}
}

func TestCallDuplicateTokenIsFatal(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)

	if _, err := c.Correlator().RegisterWait("dup", "GetContactsResult", time.Time{}, func(protocol.Result) {}); err != nil {
		t.Fatalf("RegisterWait failed: %v", err)
	}

	res := c.Call(context.Background(), protocol.ActionGetContacts, nil, "", WithToken("dup"))
	if res.Code != protocol.ErrDuplicateToken {
		t.Errorf("Expected DuplicateToken, got %s", res.Code)
	}
	if sub.Calls() != 0 {
		t.Errorf("Expected no submissions, got %d", sub.Calls())
	}
}

func TestCallDecodeFailureNotRetried(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)

	sub.onSubmit = func(token string) {
		go c.Correlator().Resolve(protocol.Event{Action: "GetContactsResult", Reference: token, Data: []byte("<garbage")})
	}

	res := c.Call(context.Background(), protocol.ActionGetContacts, nil, "")
	if res.Code != protocol.ErrDecodeFailure {
		t.Fatalf("Expected DecodeFailure, got %s", res.Code)
	}
	if string(res.Raw) != "<garbage" {
		t.Errorf("Expected raw payload attached, got %q", res.Raw)
	}
	if sub.Calls() != 1 {
		t.Errorf("Expected 1 submission, got %d", sub.Calls())
	}
}

func TestConcurrentCallsDoNotCrossResolve(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, 2*time.Second)

	sub.onSubmit = func(token string) {
		go c.Correlator().Resolve(protocol.Event{
			Action:    "GetContactsResult",
			Reference: token,
			Data:      []byte(fmt.Sprintf(`{"success":true,"data":%q}`, token)),
		})
	}

	var wg sync.WaitGroup
	results := make([]protocol.Result, 2)
	tokens := []string{"token-a", "token-b"}
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Call(context.Background(), protocol.ActionGetContacts, nil, "", WithToken(tokens[i]))
		}(i)
	}
	wg.Wait()

	for i, tok := range tokens {
		var got string
		if err := results[i].Into(&got); err != nil {
			t.Fatalf("Into failed: %v", err)
		}
		if got != tok {
			t.Errorf("Expected reply for %s, got %s", tok, got)
		}
	}
}

func TestCallContextCancelRemovesWait(t *testing.T) {
	submitted := make(chan struct{})
	sub := &fakeSubmitter{onSubmit: func(string) { close(submitted) }}
	c, _ := newTestClient(t, sub, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-submitted
		cancel()
	}()

	res := c.Call(ctx, protocol.ActionGetContacts, nil, "")
	if res.Code != protocol.ErrCancelled {
		t.Errorf("Expected Cancelled, got %s", res.Code)
	}
	if c.Correlator().Pending() != 0 {
		t.Errorf("Expected 0 pending waits, got %d", c.Correlator().Pending())
	}
}

func TestClientCancel(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Minute)

	sub.onSubmit = func(token string) {
		go c.Cancel(token)
	}

	res := c.Call(context.Background(), protocol.ActionGetContacts, nil, "")
	if res.Code != protocol.ErrCancelled {
		t.Errorf("Expected Cancelled, got %s", res.Code)
	}
	if sub.Calls() != 1 {
		t.Errorf("Expected cancelled call not to be retried, got %d submissions", sub.Calls())
	}
}

func TestWithReplyOverride(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)

	res := c.Call(context.Background(), protocol.ActionGetContacts, nil, "", WithReply(false))
	if !res.Success {
		t.Fatalf("Expected immediate success, got %q", res.Error)
	}
	if c.Correlator().Pending() != 0 {
		t.Errorf("Expected no pending wait, got %d", c.Correlator().Pending())
	}
}

func TestConfigBackoff(t *testing.T) {
	cfg := DefaultConfig()

	for retry, expected := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		if got := cfg.Backoff(retry); got != expected {
			t.Errorf("Expected backoff %v for retry %d, got %v", expected, retry, got)
		}
	}
}

func TestConfigBackoffIsCapped(t *testing.T) {
	cfg := DefaultConfig()

	for _, retry := range []int{10, 34, 64, 1000} {
		got := cfg.Backoff(retry)
		if got <= 0 || got > MaxBackoff {
			t.Errorf("Expected backoff in (0, %v] for retry %d, got %v", MaxBackoff, retry, got)
		}
	}
	if got := cfg.Backoff(64); got != MaxBackoff {
		t.Errorf("Expected backoff %v, got %v", MaxBackoff, got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for negative retries")
	}

	cfg.MaxRetries = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected zero retries to be valid, got %v", err)
	}
}
