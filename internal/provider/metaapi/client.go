// Package metaapi talks to the MetaApi cloud REST api: the provisioning api
// for account state and the per-region client api for terminal data.
package metaapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/config"
	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/bytedance/sonic"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const (
	ProviderName = "metaapi"

	_accountsURL           = "/users/current/accounts"
	_accountURL            = "/users/current/accounts/{accountId}"
	_accountInformationURL = "/users/current/accounts/{accountId}/account-information"
	_positionsURL          = "/users/current/accounts/{accountId}/positions"
	_dealsByTimeURL        = "/users/current/accounts/{accountId}/history-deals/time/{startTime}/{endTime}"

	_authHeader = "auth-token"
	_timeLayout = "2006-01-02T15:04:05.000Z"
)

type Client struct {
	c   *resty.Client
	cfg config.MetaApiConfig

	rateLimiter ratelimit.Limiter

	logger logger.Logger
}

func sonicDecoder(r io.Reader, v any) error {
	return sonic.ConfigDefault.NewDecoder(r).Decode(v)
}

func NewClient(cfg config.MetaApiConfig, logger logger.Logger) *Client {
	client := resty.New().
		SetLogger(logger).
		SetTimeout(cfg.Timeout).
		SetHeader(_authHeader, cfg.Token).
		SetHeader("Accept", "application/json").
		AddContentTypeDecoder("json", sonicDecoder)

	return &Client{
		c:           client,
		cfg:         cfg,
		rateLimiter: ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(time.Minute)),
		logger:      logger,
	}
}

func (c *Client) Close() error {
	return c.c.Close()
}

// get performs a rate limited GET of baseURL+path into result.
func (c *Client) get(ctx context.Context, baseURL, path string, pathParams map[string]string, result any) error {
	c.rateLimiter.Take()

	resp, err := c.c.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetResult(result).
		SetError(&errorDTO{}).
		Get(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return fmt.Errorf("%w: can't send request", err)
	}
	defer resp.Body.Close()

	c.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if resp.IsSuccess() {
		return nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*errorDTO); ok && e != nil && e.Message != "" {
		msg = e.Message
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", fetcher.ErrNotFound, msg)
	}
	return &StatusError{Code: resp.StatusCode(), Message: msg}
}

// StatusError is a non-2xx answer from MetaApi other than 404.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metaapi responded %d: %s", e.Code, e.Message)
}

func (c *Client) listAccounts(ctx context.Context) ([]accountDTO, error) {
	var accounts []accountDTO
	if err := c.get(ctx, c.cfg.ProvisioningURL, _accountsURL, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) getAccount(ctx context.Context, id string) (accountDTO, error) {
	var account accountDTO
	err := c.get(ctx, c.cfg.ProvisioningURL, _accountURL, map[string]string{"accountId": id}, &account)
	return account, err
}

func (c *Client) getAccountInformation(ctx context.Context, region, id string) (accountInformationDTO, error) {
	var info accountInformationDTO
	err := c.get(ctx, c.cfg.ClientURLFor(region), _accountInformationURL, map[string]string{"accountId": id}, &info)
	return info, err
}

func (c *Client) getPositions(ctx context.Context, region, id string) ([]positionDTO, error) {
	var positions []positionDTO
	if err := c.get(ctx, c.cfg.ClientURLFor(region), _positionsURL, map[string]string{"accountId": id}, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *Client) getDealsByTime(ctx context.Context, region, id string, from, to time.Time) ([]dealDTO, error) {
	var deals []dealDTO
	params := map[string]string{
		"accountId": id,
		"startTime": from.UTC().Format(_timeLayout),
		"endTime":   to.UTC().Format(_timeLayout),
	}
	if err := c.get(ctx, c.cfg.ClientURLFor(region), _dealsByTimeURL, params, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}
