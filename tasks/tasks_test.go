package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/backchannel"
	"github.com/viant/asyncauth/deferred"
	"github.com/viant/asyncauth/dispatcher"
	"github.com/viant/asyncauth/provider"
	"github.com/viant/asyncauth/queue"
	"github.com/viant/asyncauth/resume"
	"github.com/viant/asyncauth/store"
	"github.com/viant/asyncauth/ticket"
	"golang.org/x/oauth2"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// noPushIdP rejects backchannel requests and records code exchanges.
type noPushIdP struct {
	mux       sync.Mutex
	exchanges []url.Values
}

func (p *noPushIdP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/bc-authorize":
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_request",
			"error_description": "User does not have push notifications enabled",
		})
	case "/oauth/token":
		p.mux.Lock()
		p.exchanges = append(p.exchanges, r.PostForm)
		p.mux.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *noPushIdP) recorded() []url.Values {
	p.mux.Lock()
	defer p.mux.Unlock()
	return append([]url.Values(nil), p.exchanges...)
}

func TestService_EndToEnd(t *testing.T) {
	idp := &noPushIdP{}
	server := httptest.NewServer(idp)
	defer server.Close()

	client, err := provider.New(provider.Config{
		Domain:       server.URL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURL:  "https://app.example.com/async-auth/callback",
	}, provider.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	codec, err := ticket.New(testSecret)
	require.NoError(t, err)

	kv := store.NewMemoryStore(nil)
	jobs := queue.NewMemoryQueue()
	recorder := &deferred.Recorder{}
	service := New(jobs,
		deferred.New(codec, kv, recorder, "https://app.example.com"),
		resume.New(kv, client),
		Approval{Scope: "openid", Audience: "https://api.example.com", Host: "https://app.example.com"},
		WithAuthorizer(backchannel.New(client)),
	)
	executor := dispatcher.NewExecutor(jobs, dispatcher.NewRegistryFor(service), dispatcher.WithSlots(2))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- executor.Run(ctx) }()
	defer func() {
		cancel()
		<-stopped
	}()

	_, err = queue.Enqueue(ctx, jobs, asyncauth.JobTypeSearch, &asyncauth.PerformSearch{UserID: "u1", Query: "q"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(recorder.Notifications()) == 1 }, 5*time.Second, 10*time.Millisecond)
	notification := recorder.Notifications()[0]
	assert.Equal(t, "u1", notification.UserID)

	link, err := url.Parse(notification.URL)
	require.NoError(t, err)
	claims, err := codec.Verify(link.Query().Get("ticket"))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "https://app.example.com/async-auth/callback", claims.Params["redirect_uri"])
	assert.Contains(t, claims.Params["authorization_details"], `"item_name":"Mock Item"`)
	state := claims.State
	assert.Equal(t, 1, kv.Len())

	_, err = queue.Enqueue(ctx, jobs, asyncauth.JobTypeResumeCallback, &asyncauth.HandleAsyncCallback{State: state, Code: "c1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(idp.recorded()) == 1 }, 5*time.Second, 10*time.Millisecond)

	exchange := idp.recorded()[0]
	assert.Equal(t, "c1", exchange.Get("code"))
	assert.Equal(t, claims.CodeChallenge, ticket.Challenge(exchange.Get("code_verifier")))
	require.Eventually(t, func() bool { return kv.Len() == 0 }, time.Second, 10*time.Millisecond)

	// a duplicate callback must not reach the token endpoint
	_, err = queue.Enqueue(ctx, jobs, asyncauth.JobTypeResumeCallback, &asyncauth.HandleAsyncCallback{State: state, Code: "c1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return jobs.Len() == 0 && jobs.InFlight() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, idp.recorded(), 1)
	assert.Empty(t, jobs.DeadLetters())
}

type stubAuthorizer struct {
	result *backchannel.Result
	err    error
}

func (s stubAuthorizer) Authorize(ctx context.Context, request *provider.BackchannelRequest) (*backchannel.Result, error) {
	return s.result, s.err
}

type stubInitiator struct {
	requests []*deferred.Request
	err      error
}

func (s *stubInitiator) Initiate(ctx context.Context, request *deferred.Request) (*deferred.Pending, error) {
	s.requests = append(s.requests, request)
	if s.err != nil {
		return nil, s.err
	}
	return &deferred.Pending{}, nil
}

func TestService_RequestApproval(t *testing.T) {
	job := &asyncauth.Job{ID: "job-1", Type: asyncauth.JobTypeApprovalRequest}
	payload := &asyncauth.RequestUserApproval{UserID: "u1", FoundItem: asyncauth.Item{Name: "Mock Item"}}
	approval := Approval{Scope: "openid", Host: "https://app.example.com"}

	testCases := []struct {
		name           string
		authorizer     Authorizer
		initiatorErr   error
		expectDeferred bool
		expectTokens   int
		expectErr      bool
	}{
		{name: "approved", authorizer: stubAuthorizer{result: &backchannel.Result{Outcome: backchannel.Approved, Token: &oauth2.Token{AccessToken: "at"}}}, expectTokens: 1},
		{name: "unavailable", authorizer: stubAuthorizer{result: &backchannel.Result{Outcome: backchannel.Unavailable}}, expectDeferred: true},
		{name: "expired", authorizer: stubAuthorizer{result: &backchannel.Result{Outcome: backchannel.Expired}}, expectDeferred: true},
		{name: "failed", authorizer: stubAuthorizer{result: &backchannel.Result{Outcome: backchannel.Failed, Err: errors.New("access_denied")}}, expectDeferred: true},
		{name: "backchannel disabled", expectDeferred: true},
		{name: "cancelled", authorizer: stubAuthorizer{err: context.Canceled}, expectErr: true},
		{name: "deferred fails", authorizer: stubAuthorizer{result: &backchannel.Result{Outcome: backchannel.Unavailable}}, initiatorErr: errors.New("redis down"), expectDeferred: true, expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			initiator := &stubInitiator{err: tc.initiatorErr}
			var tokens int
			service := New(queue.NewMemoryQueue(), initiator, nil, approval,
				WithAuthorizer(tc.authorizer),
				WithSink(resume.TokenSinkFunc(func(ctx context.Context, token *oauth2.Token) error {
					tokens++
					return nil
				})))
			err := service.RequestApproval(context.Background(), job, payload)
			assert.Equal(t, tc.expectErr, err != nil)
			assert.Equal(t, tc.expectTokens, tokens)
			if !tc.expectDeferred {
				assert.Empty(t, initiator.requests)
				return
			}
			require.Len(t, initiator.requests, 1)
			request := initiator.requests[0]
			assert.Equal(t, "job-1", request.JobID)
			assert.Equal(t, "u1", request.UserID)
			assert.Equal(t, "https://app.example.com/async-auth/callback", request.Params["redirect_uri"])
			assert.Equal(t, "openid", request.Params["scope"])
		})
	}
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()
	job := &asyncauth.Job{ID: "job-1", Type: asyncauth.JobTypeSearch}

	t.Run("found item enqueues approval", func(t *testing.T) {
		jobs := queue.NewMemoryQueue()
		service := New(jobs, &stubInitiator{}, nil, Approval{})
		require.NoError(t, service.Search(ctx, job, &asyncauth.PerformSearch{UserID: "u1", Query: "q"}))
		next, err := jobs.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, asyncauth.JobTypeApprovalRequest, next.Type)
		payload := &asyncauth.RequestUserApproval{}
		require.NoError(t, next.Decode(payload))
		assert.Equal(t, "u1", payload.UserID)
		assert.Equal(t, "Mock Item", payload.FoundItem.Name)
		assert.Equal(t, "This is a randomly found item for testing purposes.", payload.FoundItem.Description)
	})

	t.Run("nothing found completes", func(t *testing.T) {
		jobs := queue.NewMemoryQueue()
		service := New(jobs, &stubInitiator{}, nil, Approval{}, WithSearcher(SearcherFunc(func(ctx context.Context, userID, query string) (*asyncauth.Item, error) {
			return nil, nil
		})))
		require.NoError(t, service.Search(ctx, job, &asyncauth.PerformSearch{UserID: "u1"}))
		assert.Equal(t, 0, jobs.Len())
	})
}

func TestAuthorizationDetails(t *testing.T) {
	details, err := AuthorizationDetails(asyncauth.Item{Name: "Mock Item", Description: "desc"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"item_approval","item_name":"Mock Item","item_description":"desc"}]`, details)
}
