package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/meridianledger/core/internal/domain"
)

// CalendarClient is an HTTP-backed domain.CalendarService. It is
// consulted by the interest-accrual scheduler, never on the posting hot
// path.
type CalendarClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCalendarClient creates a new CalendarClient.
func NewCalendarClient(baseURL string, timeout time.Duration) *CalendarClient {
	return &CalendarClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

type businessDayResponse struct {
	IsBusinessDay bool      `json:"is_business_day"`
	Date          time.Time `json:"date"`
}

// IsBusinessDay reports whether date is a business day in jurisdiction.
func (c *CalendarClient) IsBusinessDay(ctx context.Context, date time.Time, jurisdiction string) (bool, error) {
	var resp businessDayResponse
	if err := c.get(ctx, "/business-days/check", date, jurisdiction, 0, &resp); err != nil {
		return false, err
	}
	return resp.IsBusinessDay, nil
}

// NextBusinessDay returns the first business day strictly after date.
func (c *CalendarClient) NextBusinessDay(ctx context.Context, date time.Time, jurisdiction string) (time.Time, error) {
	var resp businessDayResponse
	if err := c.get(ctx, "/business-days/next", date, jurisdiction, 0, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.Date, nil
}

// PreviousBusinessDay returns the last business day strictly before
// date.
func (c *CalendarClient) PreviousBusinessDay(ctx context.Context, date time.Time, jurisdiction string) (time.Time, error) {
	var resp businessDayResponse
	if err := c.get(ctx, "/business-days/previous", date, jurisdiction, 0, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.Date, nil
}

// AddBusinessDays returns the date reached by advancing days business
// days from date.
func (c *CalendarClient) AddBusinessDays(ctx context.Context, date time.Time, jurisdiction string, days int) (time.Time, error) {
	var resp businessDayResponse
	if err := c.get(ctx, "/business-days/add", date, jurisdiction, days, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.Date, nil
}

func (c *CalendarClient) get(ctx context.Context, path string, date time.Time, jurisdiction string, days int, out interface{}) error {
	q := url.Values{}
	q.Set("date", date.Format(time.RFC3339))
	q.Set("jurisdiction", jurisdiction)
	if days != 0 {
		q.Set("days", fmt.Sprintf("%d", days))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.ExternalDependencyUnavailableError{Dependency: "CalendarService", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.ExternalDependencyUnavailableError{
			Dependency: "CalendarService",
			Cause:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
