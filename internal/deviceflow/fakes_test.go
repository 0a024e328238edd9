package deviceflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
	"github.com/gogotex/gogotex/backend/device-auth/internal/provider"
)

type pollResult struct {
	token *oauth2.Token
	err   error
	panic bool
}

func pending() pollResult { return pollResult{err: provider.ErrAuthorizationPending} }

func granted(tok string) pollResult {
	return pollResult{token: (&oauth2.Token{AccessToken: tok, TokenType: "bearer"}).WithExtra(map[string]interface{}{"scope": "read:user"})}
}

func failed(err error) pollResult { return pollResult{err: err} }

// fakeClient replays scripted poll results per device code; the last result
// repeats once the script is exhausted.
type fakeClient struct {
	mu         sync.Mutex
	scripts    map[string][]pollResult
	calls      map[string]int
	beforePoll func(ctx context.Context, code string)

	deviceCode *provider.DeviceCode
	deviceErr  error

	identities  map[string]*provider.Identity
	identityErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		scripts:    make(map[string][]pollResult),
		calls:      make(map[string]int),
		identities: make(map[string]*provider.Identity),
	}
}

func (f *fakeClient) script(code string, results ...pollResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[code] = results
}

func (f *fakeClient) callCount(code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[code]
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) RequestDeviceCode(ctx context.Context) (*provider.DeviceCode, error) {
	if f.deviceErr != nil {
		return nil, f.deviceErr
	}
	dc := *f.deviceCode
	return &dc, nil
}

func (f *fakeClient) PollForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	if f.beforePoll != nil {
		f.beforePoll(ctx, code)
	}
	f.mu.Lock()
	n := f.calls[code]
	f.calls[code]++
	script := f.scripts[code]
	f.mu.Unlock()

	if len(script) == 0 {
		return nil, provider.ErrAuthorizationPending
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	r := script[n]
	if r.panic {
		panic("provider exploded")
	}
	return r.token, r.err
}

func (f *fakeClient) FetchIdentity(ctx context.Context, accessToken string) (*provider.Identity, error) {
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	id, ok := f.identities[accessToken]
	if !ok {
		return nil, &provider.ProtocolError{Op: "fetch identity", StatusCode: 401}
	}
	return id, nil
}

// flakyStore wraps a Store and fails selected operations.
type flakyStore struct {
	Store
	failList bool
	failSave bool
}

var errStoreDown = errors.New("store unavailable")

func (s *flakyStore) ListAll(ctx context.Context) ([]models.PendingDeviceFlow, error) {
	if s.failList {
		return nil, errStoreDown
	}
	return s.Store.ListAll(ctx)
}

func (s *flakyStore) SaveCompletion(ctx context.Context, c *models.DeviceFlowCompletion) error {
	if s.failSave {
		return errStoreDown
	}
	return s.Store.SaveCompletion(ctx, c)
}

// hookStore runs a callback after selected reads, to interleave a sweep
// with a completion request.
type hookStore struct {
	Store
	afterExists  func()
	afterConsume func()
}

func (s *hookStore) Exists(ctx context.Context, code string) (bool, error) {
	ok, err := s.Store.Exists(ctx, code)
	if s.afterExists != nil {
		s.afterExists()
	}
	return ok, err
}

func (s *hookStore) ConsumeCompletion(ctx context.Context, code string) (*models.DeviceFlowCompletion, error) {
	c, err := s.Store.ConsumeCompletion(ctx, code)
	if s.afterConsume != nil {
		s.afterConsume()
	}
	return c, err
}

func seed(store Store, now time.Time, codes ...string) {
	for i, c := range codes {
		_ = store.Create(context.Background(), &models.PendingDeviceFlow{
			DeviceCode: c,
			CreatedAt:  now.Add(time.Duration(i) * time.Millisecond),
			ExpiresAt:  now.Add(15 * time.Minute),
			Interval:   5,
		})
	}
}
