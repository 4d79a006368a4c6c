package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoProof       = errors.New("popup returned no proof")
	ErrUnknownToken  = errors.New("popup token unknown or already used")
	ErrPopupRequired = errors.New("popup opener required")
)

// PopupBroker correlates proofs coming back from Zupass with the login that
// asked for them. Each request gets a random token that is part of the
// return URL; the first delivery for a token wins and later ones are
// dropped.
type PopupBroker struct {
	mu      sync.Mutex
	pending map[string]chan string
}

func NewPopupBroker() *PopupBroker {
	return &PopupBroker{
		pending: make(map[string]chan string),
	}
}

// PendingProof is one outstanding popup.
type PendingProof struct {
	Token  string
	broker *PopupBroker
	result chan string
}

// Request registers a new popup and returns its token.
func (b *PopupBroker) Request() *PendingProof {
	p := &PendingProof{
		Token:  uuid.NewString(),
		broker: b,
		result: make(chan string, 1),
	}
	b.mu.Lock()
	b.pending[p.Token] = p.result
	b.mu.Unlock()
	return p
}

// Deliver hands serialized to the popup waiting on token. It reports false
// when the token is unknown, already delivered or abandoned.
func (b *PopupBroker) Deliver(token, serialized string) bool {
	b.mu.Lock()
	ch, ok := b.pending[token]
	delete(b.pending, token)
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- serialized
	return true
}

// Pending reports how many popups are waiting.
func (b *PopupBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *PopupBroker) abandon(token string) {
	b.mu.Lock()
	delete(b.pending, token)
	b.mu.Unlock()
}

// Wait blocks until the proof arrives or ctx ends. A cancelled wait drops
// the token so a late delivery is ignored.
func (p *PendingProof) Wait(ctx context.Context) (string, error) {
	select {
	case serialized := <-p.result:
		return serialized, nil
	case <-ctx.Done():
		p.broker.abandon(p.Token)
		return "", ctx.Err()
	}
}

// ReturnURL is the popup landing URL for token under base.
func ReturnURL(base, token string) string {
	return strings.TrimSuffix(base, "/") + "/" + token
}

// Handler serves the popup landing page. The token is the last path
// segment and the proof arrives in the proof query parameter.
func (b *PopupBroker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		proof := r.URL.Query().Get("proof")
		if proof == "" {
			http.Error(w, ErrNoProof.Error(), http.StatusBadRequest)
			return
		}
		if !b.Deliver(token, proof) {
			http.Error(w, ErrUnknownToken.Error(), http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Proof received. You can close this window."))
	})
}

// PopupProver proves through the Zupass web client: it opens the prove URL
// and waits for the popup to come back through the broker.
type PopupProver struct {
	Broker    *PopupBroker
	ZupassURL string
	// ReturnBase is the URL the broker handler is mounted at.
	ReturnBase string
	// Open shows url to the user, typically by launching a browser. An error
	// abandons the wait. Open must return once it has handed off the URL.
	Open func(ctx context.Context, url string) error
}

func (p *PopupProver) Prove(ctx context.Context, req ProofRequest) (string, error) {
	if p.Open == nil || p.Broker == nil {
		return "", ErrPopupRequired
	}

	pending := p.Broker.Request()
	proveURL, err := ProveURL(p.ZupassURL, ReturnURL(p.ReturnBase, pending.Token), req)
	if err != nil {
		p.Broker.abandon(pending.Token)
		return "", err
	}

	var serialized string
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Open(gctx, proveURL)
	})
	g.Go(func() error {
		s, err := pending.Wait(gctx)
		if err != nil {
			return err
		}
		serialized = s
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", err
	}
	return serialized, nil
}
