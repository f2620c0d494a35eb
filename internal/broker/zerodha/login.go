package zerodha

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"kite-strangle-bot/internal/api"
	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"

	"github.com/tidwall/gjson"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

const (
	defaultLoginBaseURL = "https://kite.zerodha.com"
	maxLoginRedirects   = 10
	twoFATypeTOTP       = "totp"
)

// Auth stages reported on AuthError.
const (
	stageLogin    = "login"
	stageTwoFA    = "twofa"
	stageRedirect = "request_token"
	stageSession  = "generate_session"
)

type Credentials struct {
	APIKey    string
	APISecret string
	UserID    string
	Password  string
}

type AuthParams struct {
	Credentials
	Mode           string
	Exchange       string
	LoginBaseURL   string
	APIBaseURL     string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// webAuthenticator drives the Kite web login (password, then TOTP) and
// exchanges the resulting request token for an API session.
type webAuthenticator struct {
	p      AuthParams
	client *api.Client
}

var _ interfaces.Authenticator = (*webAuthenticator)(nil)

func newWebAuthenticator(p AuthParams) *webAuthenticator {
	if p.LoginBaseURL == "" {
		p.LoginBaseURL = defaultLoginBaseURL
	}
	timeout := p.RequestTimeout
	if timeout <= 0 {
		timeout = 7 * time.Second
	}
	return &webAuthenticator{
		p: p,
		client: api.NewClient(
			api.WithBaseURL(p.LoginBaseURL),
			api.WithTimeout(timeout),
			api.WithCookieJar(),
			api.WithoutRedirects(),
			api.WithHeader("X-Kite-Version", "3"),
			api.WithLogging(true),
		),
	}
}

func (a *webAuthenticator) Login(ctx context.Context) (types.PartialHandle, error) {
	resp, err := a.client.PostForm(ctx, "/api/login", url.Values{
		"user_id":  {a.p.UserID},
		"password": {a.p.Password},
	})
	if err != nil {
		return types.PartialHandle{}, authFailure(stageLogin, err)
	}

	body := gjson.ParseBytes(resp.Body)
	requestID := body.Get("data.request_id").String()
	if requestID == "" {
		return types.PartialHandle{}, &types.AuthError{Stage: stageLogin, Reason: "no request_id in login response"}
	}

	twoFAType := body.Get("data.twofa_type").String()
	if twoFAType == "" {
		twoFAType = twoFATypeTOTP
	}

	userID := body.Get("data.user_id").String()
	if userID == "" {
		userID = a.p.UserID
	}

	logger.Info(ctx, "Password login accepted", "user_id", userID, "twofa_type", twoFAType)
	return types.PartialHandle{UserID: userID, RequestID: requestID, TwoFAType: twoFAType}, nil
}

func (a *webAuthenticator) CompleteSecondFactor(ctx context.Context, partial types.PartialHandle, code string) (interfaces.Broker, error) {
	_, err := a.client.PostForm(ctx, "/api/twofa", url.Values{
		"user_id":     {partial.UserID},
		"request_id":  {partial.RequestID},
		"twofa_value": {code},
		"twofa_type":  {partial.TwoFAType},
	})
	if err != nil {
		return nil, authFailure(stageTwoFA, err)
	}

	requestToken, err := a.requestToken(ctx)
	if err != nil {
		return nil, err
	}

	kc := kiteconnect.New(a.p.APIKey)
	if a.p.RequestTimeout > 0 {
		kc.SetTimeout(a.p.RequestTimeout)
	}
	if a.p.APIBaseURL != "" {
		kc.SetBaseURI(a.p.APIBaseURL)
	}

	sess, err := kc.GenerateSession(requestToken, a.p.APISecret)
	if err != nil {
		return nil, &types.AuthError{Stage: stageSession, Err: err}
	}
	kc.SetAccessToken(sess.AccessToken)

	logger.Info(ctx, "Kite session established", "user_id", partial.UserID)

	feed := newTickerManager(a.p.APIKey, sess.AccessToken, a.p.ConnectTimeout)
	return NewZerodha(Params{Mode: a.p.Mode, UserID: partial.UserID, Exchange: a.p.Exchange}, kc, feed), nil
}

// requestToken walks the connect/login redirect chain until a Location
// carries request_token. The final hop to the app's redirect URL is never made.
func (a *webAuthenticator) requestToken(ctx context.Context) (string, error) {
	next := "/connect/login?" + url.Values{"api_key": {a.p.APIKey}, "v": {"3"}}.Encode()
	base, err := url.Parse(a.p.LoginBaseURL)
	if err != nil {
		return "", &types.AuthError{Stage: stageRedirect, Err: err}
	}
	current := base.ResolveReference(&url.URL{Path: "/connect/login"})

	for hop := 0; hop < maxLoginRedirects; hop++ {
		target, err := current.Parse(next)
		if err != nil {
			return "", &types.AuthError{Stage: stageRedirect, Err: err}
		}
		if token := target.Query().Get("request_token"); token != "" {
			return token, nil
		}

		resp, err := a.client.GET(ctx, target.String())
		if err != nil {
			return "", authFailure(stageRedirect, err)
		}
		loc := resp.Location()
		if loc == "" {
			return "", &types.AuthError{Stage: stageRedirect, Reason: fmt.Sprintf("redirect chain ended with HTTP %d", resp.StatusCode)}
		}
		current, next = target, loc
	}
	return "", &types.AuthError{Stage: stageRedirect, Reason: "too many redirects"}
}

// authFailure extracts the venue's message from an error response.
func authFailure(stage string, err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		if msg := gjson.Get(statusErr.Body, "message").String(); msg != "" {
			return &types.AuthError{Stage: stage, Reason: msg, Err: err}
		}
	}
	return &types.AuthError{Stage: stage, Err: err}
}
