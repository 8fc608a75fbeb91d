package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"flighttrack/monitor"
)

const (
	defaultBaseURL = "https://api.aviationstack.com/v1"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20
)

// StatusError is a non-success HTTP response from the provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("aviationstack: HTTP %d", e.Code)
	}
	return fmt.Sprintf("aviationstack: HTTP %d: %s", e.Code, e.Body)
}

// APIError is an error object returned inside a 2xx body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aviationstack: %s: %s", e.Code, e.Message)
}

// ═══════════════════════════════════════════════════════════════════════════
// Client
// ═══════════════════════════════════════════════════════════════════════════

// Client queries the AviationStack /flights endpoint. It implements
// monitor.Provider.
type Client struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ monitor.Provider = (*Client)(nil)

// NewClient creates a client with a 30 second timeout and no rate limit.
func NewClient(accessKey string) *Client {
	return &Client{
		baseURL:   defaultBaseURL,
		accessKey: accessKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
}

// WithBaseURL points the client elsewhere (tests, paid plan over HTTPS).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// WithRateLimit caps outbound requests at perMinute, with a burst of one.
// Zero or less removes the cap.
func (c *Client) WithRateLimit(perMinute int) *Client {
	if perMinute <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return c
}

// LookupByNumber finds flights with the given IATA flight designator.
func (c *Client) LookupByNumber(ctx context.Context, flightNumber string) ([]monitor.Flight, error) {
	return c.flights(ctx, url.Values{"flight_iata": {flightNumber}})
}

// LookupByRoute finds flights from dep to arr.
func (c *Client) LookupByRoute(ctx context.Context, dep, arr string) ([]monitor.Flight, error) {
	return c.flights(ctx, url.Values{"dep_iata": {dep}, "arr_iata": {arr}})
}

func (c *Client) flights(ctx context.Context, q url.Values) ([]monitor.Flight, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("aviationstack: rate limit: %w", err)
	}

	q.Set("access_key", c.accessKey)
	endpoint := c.baseURL + "/flights?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("aviationstack: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aviationstack: fetch: %w", redactKey(err, c.accessKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var page flightsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&page); err != nil {
		return nil, fmt.Errorf("aviationstack: decode JSON: %w", err)
	}
	if page.Error != nil {
		return nil, page.Error
	}

	out := make([]monitor.Flight, 0, len(page.Data))
	for _, d := range page.Data {
		out = append(out, d.toFlight())
	}
	return out, nil
}

// redactKey strips the access key from url.Error messages.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), key, "REDACTED"))
}

// ═══════════════════════════════════════════════════════════════════════════
// Wire format
//
//	{
//	  "data": [{
//	    "flight_date": "2025-03-14",
//	    "flight_status": "active",
//	    "departure": {"iata": "JFK", "delay": 12, "scheduled": "2025-03-14T09:00:00+00:00", ...},
//	    "arrival":   {"iata": "LAX", ...},
//	    "airline":   {"name": "American Airlines"},
//	    "flight":    {"iata": "AA123"},
//	    "live":      {"latitude": 38.5, "longitude": -95.2, ...}
//	  }]
//	}
// ═══════════════════════════════════════════════════════════════════════════

type flightsResponse struct {
	Data  []flightData `json:"data"`
	Error *APIError    `json:"error"`
}

type flightData struct {
	FlightDate   string       `json:"flight_date"`
	FlightStatus string       `json:"flight_status"`
	Departure    endpointData `json:"departure"`
	Arrival      endpointData `json:"arrival"`
	Airline      struct {
		Name string `json:"name"`
		IATA string `json:"iata"`
		ICAO string `json:"icao"`
	} `json:"airline"`
	Flight struct {
		Number string `json:"number"`
		IATA   string `json:"iata"`
		ICAO   string `json:"icao"`
	} `json:"flight"`
	Live *liveData `json:"live"`
}

type endpointData struct {
	Airport         string       `json:"airport"`
	Timezone        string       `json:"timezone"`
	IATA            string       `json:"iata"`
	ICAO            string       `json:"icao"`
	Terminal        string       `json:"terminal"`
	Gate            string       `json:"gate"`
	Delay           *int         `json:"delay"`
	Scheduled       string       `json:"scheduled"`
	Estimated       string       `json:"estimated"`
	Actual          string       `json:"actual"`
	EstimatedRunway string       `json:"estimated_runway"`
	ActualRunway    string       `json:"actual_runway"`
	AirportInfo     *airportInfo `json:"airport_info"`
}

type airportInfo struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Name      string   `json:"name"`
	Country   string   `json:"country"`
	City      string   `json:"city"`
}

type liveData struct {
	Updated         string   `json:"updated"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Altitude        float64  `json:"altitude"`
	Direction       float64  `json:"direction"`
	SpeedHorizontal float64  `json:"speed_horizontal"`
	SpeedVertical   float64  `json:"speed_vertical"`
	IsGround        bool     `json:"is_ground"`
}

func (d flightData) toFlight() monitor.Flight {
	f := monitor.Flight{
		Date:      d.FlightDate,
		Status:    d.FlightStatus,
		Number:    d.Flight.IATA,
		Airline:   d.Airline.Name,
		Departure: d.Departure.toEndpoint(),
		Arrival:   d.Arrival.toEndpoint(),
	}
	if l := d.Live; l != nil && l.Latitude != nil && l.Longitude != nil {
		updated, _ := monitor.ParseTimestamp(l.Updated)
		f.Live = &monitor.Live{
			Updated:         updated,
			Position:        monitor.Coordinate{Lat: *l.Latitude, Lon: *l.Longitude},
			Altitude:        l.Altitude,
			Direction:       l.Direction,
			SpeedHorizontal: l.SpeedHorizontal,
			IsGround:        l.IsGround,
		}
	}
	return f
}

func (e endpointData) toEndpoint() monitor.Endpoint {
	ep := monitor.Endpoint{
		IATA:      e.IATA,
		Airport:   e.Airport,
		Timezone:  e.Timezone,
		Terminal:  e.Terminal,
		Gate:      e.Gate,
		Delay:     e.Delay,
		Scheduled: e.Scheduled,
		Estimated: e.Estimated,
		Actual:    e.Actual,
	}
	if ai := e.AirportInfo; ai != nil && ai.Latitude != nil && ai.Longitude != nil {
		ep.Location = &monitor.Coordinate{Lat: *ai.Latitude, Lon: *ai.Longitude}
	}
	return ep
}
