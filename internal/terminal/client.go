// Package terminal owns everything that talks to the external trading
// terminal: the opaque bridge client, the session gateway that controls the
// terminal process lifecycle, and the history extractor.
package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/okorotkov/fleetsync/internal/domain"
)

// InitRequest carries everything the terminal needs to open a session.
type InitRequest struct {
	Path     string
	Login    int64
	Password string
	Server   string
	Timeout  time.Duration
}

// Client is the opaque terminal session boundary. Implementations talk to a
// local bridge process sitting next to the terminal; callers never see the
// transport.
type Client interface {
	Initialize(ctx context.Context, req InitRequest) error
	Shutdown(ctx context.Context) error
	// LastError returns the terminal's last error code and text. It is
	// best effort and never fails.
	LastError(ctx context.Context) (int, string)
	// Ping checks that the terminal still answers. Used between failed
	// history fetches to nudge a wedged connection.
	Ping(ctx context.Context) error
	HistoryDeals(ctx context.Context, from, to time.Time, group string) ([]domain.RawDeal, error)
}

// Terminal wire constants, mirroring the terminal's own deal enums.
const (
	wireDealBuy     = 0
	wireDealSell    = 1
	wireDealBalance = 2

	wireEntryIn    = 0
	wireEntryOut   = 1
	wireEntryInOut = 2
)

type wireDeal struct {
	Ticket     int64           `json:"ticket"`
	PositionID int64           `json:"position_id"`
	Time       int64           `json:"time"` // unix seconds
	Symbol     string          `json:"symbol"`
	Type       int             `json:"type"`
	Entry      int             `json:"entry"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	Profit     decimal.Decimal `json:"profit"`
	Swap       decimal.Decimal `json:"swap"`
	Commission decimal.Decimal `json:"commission"`
}

func (w wireDeal) toDomain() domain.RawDeal {
	d := domain.RawDeal{
		Ticket:     w.Ticket,
		PositionID: w.PositionID,
		Time:       time.Unix(w.Time, 0),
		Symbol:     w.Symbol,
		Price:      w.Price,
		Volume:     w.Volume,
		Profit:     w.Profit,
		Swap:       w.Swap,
		Commission: w.Commission,
	}

	switch w.Type {
	case wireDealSell:
		d.Kind = domain.DealSell
	case wireDealBalance:
		d.Kind = domain.DealBalance
	default:
		d.Kind = domain.DealBuy
	}

	switch w.Entry {
	case wireEntryIn:
		d.Entry = domain.EntryIn
	case wireEntryOut:
		d.Entry = domain.EntryOut
	case wireEntryInOut:
		d.Entry = domain.EntryInOut
	default:
		d.Entry = domain.EntryUnknown
	}

	return d
}

// BridgeClient is the JSON-over-HTTP Client implementation against the local
// terminal bridge.
type BridgeClient struct {
	baseURL string
	http    *http.Client
}

// NewBridgeClient creates a bridge client for the given base URL, e.g.
// http://127.0.0.1:18812.
func NewBridgeClient(baseURL string, timeout time.Duration) *BridgeClient {
	return &BridgeClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *BridgeClient) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return errors.Wrap(err, "encode bridge request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return errors.Wrap(err, "build bridge request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *BridgeClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build bridge request")
	}
	return c.do(req, out)
}

func (c *BridgeClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "bridge %s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("bridge %s returned %d: %s", req.URL.Path, resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode bridge response for %s", req.URL.Path)
	}
	return nil
}

// Initialize asks the bridge to log the terminal into the given account.
func (c *BridgeClient) Initialize(ctx context.Context, r InitRequest) error {
	body := map[string]any{
		"path":       r.Path,
		"login":      r.Login,
		"password":   r.Password,
		"server":     r.Server,
		"timeout_ms": r.Timeout.Milliseconds(),
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.post(ctx, "/initialize", body, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return errors.New("terminal rejected initialization")
	}
	return nil
}

// Shutdown closes the terminal session.
func (c *BridgeClient) Shutdown(ctx context.Context) error {
	return c.post(ctx, "/shutdown", nil, nil)
}

// LastError fetches the terminal's last error. Failures degrade to (0, "").
func (c *BridgeClient) LastError(ctx context.Context) (int, string) {
	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := c.get(ctx, "/last_error", nil, &resp); err != nil {
		return 0, ""
	}
	return resp.Code, resp.Message
}

// Ping checks bridge and terminal liveness.
func (c *BridgeClient) Ping(ctx context.Context) error {
	return c.get(ctx, "/ping", nil, nil)
}

// HistoryDeals fetches the raw deal log for [from, to]. An empty group means
// no filter; "*" broadens the scope to every symbol group.
func (c *BridgeClient) HistoryDeals(ctx context.Context, from, to time.Time, group string) ([]domain.RawDeal, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	if group != "" {
		q.Set("group", group)
	}

	var resp struct {
		Deals []wireDeal `json:"deals"`
	}
	if err := c.get(ctx, "/history_deals", q, &resp); err != nil {
		return nil, err
	}

	deals := make([]domain.RawDeal, 0, len(resp.Deals))
	for _, w := range resp.Deals {
		deals = append(deals, w.toDomain())
	}
	return deals, nil
}

var _ Client = (*BridgeClient)(nil)
