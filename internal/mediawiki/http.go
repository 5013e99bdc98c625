package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"wikiloom/internal/config"
)

// HTTPClient implements Client against a live api.php endpoint using bot
// password authentication.
type HTTPClient struct {
	apiURL    string
	username  string
	password  string
	userAgent string
	editSleep time.Duration
	http      *http.Client

	mu        sync.Mutex
	csrfToken string
	loggedIn  bool
	lastEdit  time.Time
}

// NewHTTPClient builds the client from configuration. Login is lazy; the
// first write triggers it.
func NewHTTPClient(cfg *config.Config) (*HTTPClient, error) {
	if cfg.Wiki.APIURL == "" {
		return nil, errors.New("wiki api_url not configured")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	timeout := time.Duration(cfg.Wiki.RequestTimeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		apiURL:    cfg.Wiki.APIURL,
		username:  cfg.Wiki.Username,
		password:  cfg.Wiki.Password,
		userAgent: cfg.Wiki.UserAgent,
		editSleep: time.Duration(cfg.Wiki.EditSleepMs) * time.Millisecond,
		http:      &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

var _ Client = (*HTTPClient)(nil)

// PageRevision implements Client.
func (c *HTTPClient) PageRevision(ctx context.Context, title string) (int64, error) {
	rev, err := c.PageWikitext(ctx, title)
	if err != nil {
		return 0, err
	}
	return rev.ID, nil
}

// PageWikitext implements Client.
func (c *HTTPClient) PageWikitext(ctx context.Context, title string) (Revision, error) {
	var resp struct {
		Query struct {
			Pages []struct {
				Missing   bool `json:"missing"`
				Revisions []struct {
					RevID int64 `json:"revid"`
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	err := c.get(ctx, url.Values{
		"action":        {"query"},
		"titles":        {title},
		"prop":          {"revisions"},
		"rvprop":        {"ids|content"},
		"rvslots":       {"main"},
		"formatversion": {"2"},
	}, &resp)
	if err != nil {
		return Revision{}, err
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing || len(resp.Query.Pages[0].Revisions) == 0 {
		return Revision{}, fmt.Errorf("%s: %w", title, ErrPageMissing)
	}
	latest := resp.Query.Pages[0].Revisions[0]
	return Revision{Wikitext: latest.Slots.Main.Content, ID: latest.RevID}, nil
}

// Edit implements Client.
func (c *HTTPClient) Edit(ctx context.Context, title, text, summary string) error {
	token, err := c.ensureCSRF(ctx)
	if err != nil {
		return err
	}
	c.throttleEdits()

	var resp struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	err = c.post(ctx, url.Values{
		"action":  {"edit"},
		"title":   {title},
		"text":    {text},
		"summary": {summary},
		"bot":     {"1"},
		"token":   {token},
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case "editconflict":
				return &WriteConflictError{Title: title}
			case "ratelimited":
				return &RateLimitedError{Cause: apiErr}
			case "badtoken":
				c.invalidateCSRF()
			}
		}
		return err
	}
	if resp.Edit.Result != "Success" {
		return &APIError{Code: "edit", Info: "unexpected result " + resp.Edit.Result}
	}
	return nil
}

// EditUnit implements Client.
func (c *HTTPClient) EditUnit(ctx context.Context, title, unitKey, lang, text, summary string) error {
	return c.Edit(ctx, UnitPageTitle(title, unitKey, lang), text, summary)
}

// Metadata implements Client.
func (c *HTTPClient) Metadata(ctx context.Context, title string) (map[string]string, error) {
	rev, err := c.PageWikitext(ctx, MetadataPageTitle(title))
	if errors.Is(err, ErrPageMissing) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	meta := map[string]string{}
	if err := json.Unmarshal([]byte(rev.Wikitext), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata page %s: %w", title, err)
	}
	return meta, nil
}

// WriteMetadata implements Client.
func (c *HTTPClient) WriteMetadata(ctx context.Context, title string, meta map[string]string) error {
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return c.Edit(ctx, MetadataPageTitle(title), string(payload), "Update translation metadata")
}

// RecentChanges implements Client.
func (c *HTTPClient) RecentChanges(ctx context.Context, since string, limit int) ([]ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	values := url.Values{
		"action":        {"query"},
		"list":          {"recentchanges"},
		"rcprop":        {"title|ids|timestamp"},
		"rctype":        {"edit|new"},
		"rcnamespace":   {"0"},
		"rcdir":         {"newer"},
		"rclimit":       {strconv.Itoa(limit)},
		"formatversion": {"2"},
	}
	if since != "" {
		values.Set("rcstart", since)
	}

	var resp struct {
		Query struct {
			RecentChanges []struct {
				Title     string `json:"title"`
				RevID     int64  `json:"revid"`
				Timestamp string `json:"timestamp"`
			} `json:"recentchanges"`
		} `json:"query"`
	}
	if err := c.get(ctx, values, &resp); err != nil {
		return nil, err
	}

	events := make([]ChangeEvent, 0, len(resp.Query.RecentChanges))
	for _, change := range resp.Query.RecentChanges {
		events = append(events, ChangeEvent{
			Title:     change.Title,
			Revision:  change.RevID,
			Timestamp: change.Timestamp,
		})
	}
	return events, nil
}

// AllPages implements Client.
func (c *HTTPClient) AllPages(ctx context.Context, cont string, limit int) ([]PageInfo, string, error) {
	if limit <= 0 {
		limit = 100
	}
	values := url.Values{
		"action":        {"query"},
		"list":          {"allpages"},
		"apnamespace":   {"0"},
		"apfilterredir": {"nonredirects"},
		"aplimit":       {strconv.Itoa(limit)},
		"formatversion": {"2"},
	}
	if cont != "" {
		values.Set("apcontinue", cont)
	}

	var resp struct {
		Continue struct {
			APContinue string `json:"apcontinue"`
		} `json:"continue"`
		Query struct {
			AllPages []struct {
				Title string `json:"title"`
			} `json:"allpages"`
		} `json:"query"`
	}
	if err := c.get(ctx, values, &resp); err != nil {
		return nil, "", err
	}

	pages := make([]PageInfo, 0, len(resp.Query.AllPages))
	for _, page := range resp.Query.AllPages {
		pages = append(pages, PageInfo{Title: page.Title})
	}
	return pages, resp.Continue.APContinue, nil
}

// MarkForTranslation implements Client.
func (c *HTTPClient) MarkForTranslation(ctx context.Context, title string) error {
	token, err := c.ensureCSRF(ctx)
	if err != nil {
		return err
	}
	var resp struct{}
	err = c.post(ctx, url.Values{
		"action": {"markfortranslation"},
		"title":  {title},
		"token":  {token},
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "badtoken" {
			c.invalidateCSRF()
		}
		return err
	}
	return nil
}

func (c *HTTPClient) ensureCSRF(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loggedIn && c.username != "" {
		if err := c.loginLocked(ctx); err != nil {
			return "", err
		}
		c.loggedIn = true
	}
	if c.csrfToken != "" {
		return c.csrfToken, nil
	}

	var resp struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	err := c.get(ctx, url.Values{
		"action":        {"query"},
		"meta":          {"tokens"},
		"type":          {"csrf"},
		"formatversion": {"2"},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	c.csrfToken = resp.Query.Tokens.CSRFToken
	return c.csrfToken, nil
}

func (c *HTTPClient) invalidateCSRF() {
	c.mu.Lock()
	c.csrfToken = ""
	c.mu.Unlock()
}

func (c *HTTPClient) loginLocked(ctx context.Context) error {
	var tokenResp struct {
		Query struct {
			Tokens struct {
				LoginToken string `json:"logintoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	err := c.get(ctx, url.Values{
		"action":        {"query"},
		"meta":          {"tokens"},
		"type":          {"login"},
		"formatversion": {"2"},
	}, &tokenResp)
	if err != nil {
		return fmt.Errorf("fetch login token: %w", err)
	}

	var loginResp struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	err = c.post(ctx, url.Values{
		"action":     {"login"},
		"lgname":     {c.username},
		"lgpassword": {c.password},
		"lgtoken":    {tokenResp.Query.Tokens.LoginToken},
	}, &loginResp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if loginResp.Login.Result != "Success" {
		return &APIError{Code: "login", Info: loginResp.Login.Result + " " + loginResp.Login.Reason}
	}
	return nil
}

func (c *HTTPClient) throttleEdits() {
	if c.editSleep <= 0 {
		return
	}
	c.mu.Lock()
	wait := c.editSleep - time.Since(c.lastEdit)
	c.lastEdit = time.Now().Add(wait)
	c.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}

func (c *HTTPClient) get(ctx context.Context, values url.Values, out any) error {
	values.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, values url.Values, out any) error {
	values.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(values.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", c.apiURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{Cause: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Code: "http", Info: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		apiErr := &APIError{Code: envelope.Error.Code, Info: envelope.Error.Info}
		if apiErr.Code == "ratelimited" {
			return &RateLimitedError{Cause: apiErr}
		}
		return apiErr
	}
	return json.Unmarshal(payload, out)
}
