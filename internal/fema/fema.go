package fema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
)

const (
	DefaultFCCURL  = "https://geo.fcc.gov/api/census/block/find"
	DefaultFEMAURL = "https://www.fema.gov/api/open/v2/DisasterDeclarationsSummaries"
)

// ErrLookupFailed covers both the census lookup and the FEMA query.
var ErrLookupFailed = errors.New("declaration lookup failed")

// Location is the census geography containing a coordinate.
type Location struct {
	StateFIPS  string `json:"state_fips"`
	CountyFIPS string `json:"county_fips"` // three digits, without the state prefix
	StateCode  string `json:"state_code"`
	CountyName string `json:"county_name"`
}

// Declaration is one FEMA disaster declaration summary row.
type Declaration struct {
	DisasterNumber    int        `json:"disasterNumber"`
	DeclarationTitle  string     `json:"declarationTitle"`
	DeclarationType   string     `json:"declarationType"`
	IncidentType      string     `json:"incidentType"`
	State             string     `json:"state"`
	DesignatedArea    string     `json:"designatedArea"`
	FIPSStateCode     string     `json:"fipsStateCode"`
	FIPSCountyCode    string     `json:"fipsCountyCode"`
	DeclarationDate   time.Time  `json:"declarationDate"`
	IncidentBeginDate time.Time  `json:"incidentBeginDate"`
	IncidentEndDate   *time.Time `json:"incidentEndDate"`
}

type fccResponse struct {
	County struct {
		FIPS string `json:"FIPS"`
		Name string `json:"name"`
	} `json:"County"`
	State struct {
		FIPS string `json:"FIPS"`
		Code string `json:"code"`
	} `json:"State"`
}

type femaResponse struct {
	Declarations []Declaration `json:"DisasterDeclarationsSummaries"`
}

// Client finds open FEMA declarations for the county containing a coordinate.
type Client struct {
	fccURL  string
	femaURL string
	months  int
	client  *http.Client
	clock   clockwork.Clock
}

// NewClient keeps declarations made within the last months months.
func NewClient(fccURL, femaURL string, timeout time.Duration, months int, clock clockwork.Clock) *Client {
	if months <= 0 {
		months = 6
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		fccURL:  fccURL,
		femaURL: femaURL,
		months:  months,
		client: &http.Client{
			Timeout: timeout,
		},
		clock: clock,
	}
}

// Locate resolves the state and county FIPS codes for coord.
func (c *Client) Locate(ctx context.Context, coord geo.Coordinate) (Location, error) {
	if err := coord.Validate(); err != nil {
		return Location{}, err
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	q.Set("censusYear", "2020")
	q.Set("showall", "false")
	q.Set("format", "json")

	var data fccResponse
	if err := c.getJSON(ctx, c.fccURL+"?"+q.Encode(), &data); err != nil {
		return Location{}, fmt.Errorf("%w: census block: %v", ErrLookupFailed, err)
	}

	// County FIPS is state (2) + county (3).
	if data.State.FIPS == "" || len(data.County.FIPS) <= 2 {
		return Location{}, fmt.Errorf("%w: no FIPS codes for %s", ErrLookupFailed, coord)
	}

	return Location{
		StateFIPS:  data.State.FIPS,
		CountyFIPS: data.County.FIPS[2:],
		StateCode:  data.State.Code,
		CountyName: data.County.Name,
	}, nil
}

// Declarations returns the open declarations for the county containing coord, newest incident first.
func (c *Client) Declarations(ctx context.Context, coord geo.Coordinate) (Location, []Declaration, error) {
	loc, err := c.Locate(ctx, coord)
	if err != nil {
		return Location{}, nil, err
	}

	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("incidentEndDate eq null and fipsStateCode eq '%s' and fipsCountyCode eq '%s'",
		loc.StateFIPS, loc.CountyFIPS))
	q.Set("$orderby", "incidentBeginDate desc")

	var data femaResponse
	if err := c.getJSON(ctx, c.femaURL+"?"+q.Encode(), &data); err != nil {
		return loc, nil, fmt.Errorf("%w: declarations: %v", ErrLookupFailed, err)
	}

	cutoff := c.clock.Now().AddDate(0, -c.months, 0)
	out := make([]Declaration, 0, len(data.Declarations))
	for _, d := range data.Declarations {
		if !d.DeclarationDate.Before(cutoff) {
			out = append(out, d)
		}
	}
	return loc, out, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return nil
}
