// Package tasks implements the built-in job handlers: item search, user approval
// with a deferred fallback, and resumption of deferred authorizations.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	afsurl "github.com/viant/afs/url"
	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/backchannel"
	"github.com/viant/asyncauth/deferred"
	"github.com/viant/asyncauth/dispatcher"
	"github.com/viant/asyncauth/provider"
	"github.com/viant/asyncauth/queue"
	"github.com/viant/asyncauth/resume"
)

// Authorizer obtains consent through the backchannel.
type Authorizer interface {
	Authorize(ctx context.Context, request *provider.BackchannelRequest) (*backchannel.Result, error)
}

// Initiator starts a deferred authorization.
type Initiator interface {
	Initiate(ctx context.Context, request *deferred.Request) (*deferred.Pending, error)
}

// Resumer completes a deferred authorization.
type Resumer interface {
	Resume(ctx context.Context, callback *asyncauth.HandleAsyncCallback) error
}

// Approval holds the authorization parameters requested for item approvals.
type Approval struct {
	Scope           string
	Audience        string
	BindingMessage  string
	RequestedExpiry time.Duration
	// Host is the public base URL of the intake service.
	Host string
}

// Service implements dispatcher.Handlers.
type Service struct {
	producer   queue.Producer
	searcher   Searcher
	authorizer Authorizer
	initiator  Initiator
	resumer    Resumer
	sink       resume.TokenSink
	approval   Approval
	logger     *slog.Logger
}

var _ dispatcher.Handlers = (*Service)(nil)

// Option mutates Service.
type Option func(s *Service)

// WithSearcher sets the item searcher.
func WithSearcher(searcher Searcher) Option {
	return func(s *Service) {
		if searcher != nil {
			s.searcher = searcher
		}
	}
}

// WithAuthorizer enables the backchannel attempt before the deferred fallback.
func WithAuthorizer(authorizer Authorizer) Option {
	return func(s *Service) {
		s.authorizer = authorizer
	}
}

// WithSink sets the receiver of backchannel tokens.
func WithSink(sink resume.TokenSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Service.
func New(producer queue.Producer, initiator Initiator, resumer Resumer, approval Approval, options ...Option) *Service {
	ret := &Service{
		producer:  producer,
		searcher:  MockSearcher{},
		initiator: initiator,
		resumer:   resumer,
		approval:  approval,
		logger:    asyncauth.DefaultLogger,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.sink == nil {
		ret.sink = resume.NewLogSink(ret.logger, nil)
	}
	return ret
}

// Search looks up an item and asks the user to approve it.
func (s *Service) Search(ctx context.Context, job *asyncauth.Job, payload *asyncauth.PerformSearch) error {
	logger := s.logger.With("job_id", job.ID, "user_id", payload.UserID)
	item, err := s.searcher.Search(ctx, payload.UserID, payload.Query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if item == nil {
		logger.Info("no item found")
		return nil
	}
	next, err := queue.Enqueue(ctx, s.producer, asyncauth.JobTypeApprovalRequest, &asyncauth.RequestUserApproval{
		UserID:    payload.UserID,
		FoundItem: *item,
	})
	if err != nil {
		return err
	}
	logger.Info("item found, approval requested", "item", item.Name, "next_job_id", next.ID)
	return nil
}

// RequestApproval tries the backchannel first and falls back to a deferred authorization.
// Only a failure of the deferred path fails the job.
func (s *Service) RequestApproval(ctx context.Context, job *asyncauth.Job, payload *asyncauth.RequestUserApproval) error {
	logger := s.logger.With("job_id", job.ID, "user_id", payload.UserID)
	details, err := AuthorizationDetails(payload.FoundItem)
	if err != nil {
		return asyncauth.Permanent(err)
	}
	if s.authorizer != nil {
		result, err := s.authorizer.Authorize(ctx, &provider.BackchannelRequest{
			UserID:          payload.UserID,
			Scope:           s.approval.Scope,
			Audience:        s.approval.Audience,
			BindingMessage:  s.approval.BindingMessage,
			RequestedExpiry: s.approval.RequestedExpiry,
		})
		if err != nil {
			return err
		}
		if result.Outcome == backchannel.Approved {
			if err := s.sink.Accept(ctx, result.Token); err != nil {
				logger.Error("failed to deliver backchannel tokens", "error", err)
			}
			return nil
		}
		logger.Info("falling back to deferred authorization", "outcome", result.Outcome.String())
	}
	params := map[string]string{
		"authorization_details": details,
		"scope":                 s.approval.Scope,
		"redirect_uri":          CallbackURL(s.approval.Host),
	}
	if s.approval.Audience != "" {
		params["audience"] = s.approval.Audience
	}
	_, err = s.initiator.Initiate(ctx, &deferred.Request{JobID: job.ID, UserID: payload.UserID, Params: params})
	return err
}

// ResumeCallback completes a deferred authorization.
func (s *Service) ResumeCallback(ctx context.Context, job *asyncauth.Job, payload *asyncauth.HandleAsyncCallback) error {
	return s.resumer.Resume(ctx, payload)
}

type itemApproval struct {
	Type            string `json:"type"`
	ItemName        string `json:"item_name"`
	ItemDescription string `json:"item_description"`
}

// AuthorizationDetails encodes the rich authorization request for approving item.
func AuthorizationDetails(item asyncauth.Item) (string, error) {
	data, err := json.Marshal([]itemApproval{{Type: "item_approval", ItemName: item.Name, ItemDescription: item.Description}})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CallbackURL returns the provider redirect target on host.
func CallbackURL(host string) string {
	return afsurl.Join(strings.TrimRight(host, "/"), strings.TrimLeft(asyncauth.CallbackPath, "/"))
}
