package wsnotify

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

const DefaultTokenParam = "token"

type (
	OpenConnectionParams struct {
		URL    url.URL
		Header http.Header
	}

	OpenConnectionParamsGetter func(ctx context.Context) (OpenConnectionParams, error)

	// TokenProvider returns the bearer token to use for the next handshake.
	TokenProvider func(ctx context.Context) (string, error)

	OpenConnectionParamsRepo struct {
		logger Logger
		getter OpenConnectionParamsGetter
	}
)

func (r OpenConnectionParamsRepo) Get(
	ctx context.Context,
) (params OpenConnectionParams, err error) {
	params, err = r.getter(ctx)
	if err != nil {
		r.logger.Errorf("cannot fetch open connection params: %s", err)
	}
	return
}

func NewOpenConnectionParamsRepo(
	logger Logger,
	getter OpenConnectionParamsGetter,
) OpenConnectionParamsRepo {
	return OpenConnectionParamsRepo{getter: getter, logger: logger}
}

// NewTokenParamsGetter resolves base and appends the token as query parameter param
// on every call, so refreshed tokens are used on reconnect.
func NewTokenParamsGetter(
	base url.URL,
	param string,
	header http.Header,
	tokens TokenProvider,
) OpenConnectionParamsGetter {
	if param == "" {
		param = DefaultTokenParam
	}
	return func(ctx context.Context) (OpenConnectionParams, error) {
		u := base
		if tokens != nil {
			token, err := tokens(ctx)
			if err != nil {
				return OpenConnectionParams{}, errors.Wrap(err, "cannot obtain token")
			}
			if token != "" {
				q := u.Query()
				q.Set(param, token)
				u.RawQuery = q.Encode()
			}
		}
		return OpenConnectionParams{URL: u, Header: header.Clone()}, nil
	}
}

// StaticToken always hands out the same token.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// BuildURL turns a control plane address into a websocket URL. http and https
// origins map to ws and wss respectively.
func BuildURL(address string) (url.URL, error) {
	if address == "" {
		return url.URL{}, ErrMissingAddress
	}

	u, err := url.Parse(address)
	if err != nil {
		return url.URL{}, &AddressError{Address: address, err: err}
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return url.URL{}, &AddressError{Address: address, err: errors.Errorf("unsupported scheme %q", u.Scheme)}
	}

	if u.Host == "" {
		return url.URL{}, &AddressError{Address: address, err: errors.New("missing host")}
	}

	return *u, nil
}
