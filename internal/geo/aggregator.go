package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/carvik/geodex/internal/models"
)

// Aggregator collects IP geolocation, country metadata and city
// demographics from public APIs and folds them into one record.
// Every upstream call is bounded by the client timeout; a source that
// fails is skipped and the record reports which sources answered.
type Aggregator struct {
	geoBaseURL     string
	geoFallbackURL string
	countryBaseURL string
	cityBaseURL    string
	cityAPIKey     string
	httpClient     *http.Client
}

// NewAggregator creates an aggregator against the given API base URLs.
func NewAggregator(geoBaseURL, geoFallbackURL, countryBaseURL, cityBaseURL string) *Aggregator {
	return &Aggregator{
		geoBaseURL:     strings.TrimRight(geoBaseURL, "/"),
		geoFallbackURL: strings.TrimRight(geoFallbackURL, "/"),
		countryBaseURL: strings.TrimRight(countryBaseURL, "/"),
		cityBaseURL:    strings.TrimRight(cityBaseURL, "/"),
		cityAPIKey:     "",
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

// WithCityAPIKey sets the key sent to the city demographics API.
func (a *Aggregator) WithCityAPIKey(key string) *Aggregator {
	a.cityAPIKey = key
	return a
}

type ipLocation struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryCode string  `json:"country_code"`
	CountryName string  `json:"country_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
}

// fallbackLocation is ip-api.com's response shape, mapped into
// ipLocation by the fallback path.
type fallbackLocation struct {
	Status      string  `json:"status"`
	Query       string  `json:"query"`
	City        string  `json:"city"`
	RegionName  string  `json:"regionName"`
	CountryCode string  `json:"countryCode"`
	Country     string  `json:"country"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
}

type currencyInfo struct {
	Name string `json:"name"`
}

type countryInfo struct {
	Capital    []string                `json:"capital"`
	Currencies map[string]currencyInfo `json:"currencies"`
	Languages  map[string]string       `json:"languages"`
	Area       float64                 `json:"area"`
}

type cityInfo struct {
	Name       string `json:"name"`
	Population int64  `json:"population"`
}

// Collect aggregates everything known about the IP. Partial upstream
// failures degrade the record rather than failing it; only a total
// geolocation failure (primary and fallback) is an error, since the
// remaining lookups key off the location.
func (a *Aggregator) Collect(ctx context.Context, ip string) (*models.Record, error) {
	rec := &models.Record{IP: ip}
	var sources []string

	loc, source, err := a.lookupLocation(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("geolocation failed: %w", err)
	}
	sources = append(sources, source)

	rec.IP = loc.IP
	rec.City = loc.City
	rec.Region = loc.Region
	rec.CountryCode = loc.CountryCode
	rec.CountryName = loc.CountryName
	rec.Latitude = loc.Latitude
	rec.Longitude = loc.Longitude
	rec.Timezone = loc.Timezone

	if country, err := a.lookupCountry(ctx, loc.CountryCode); err != nil {
		log.Printf("Geo: country lookup failed for %s: %v", loc.CountryCode, err)
	} else {
		if len(country.Capital) > 0 {
			rec.Capital = country.Capital[0]
		}
		for _, c := range country.Currencies {
			rec.Currency = c.Name
			break
		}
		var langs []string
		for _, l := range country.Languages {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		rec.Languages = strings.Join(langs, ", ")
		if country.Area > 0 {
			area := country.Area
			rec.AreaKm2 = &area
		}
		sources = append(sources, "restcountries")
	}

	if loc.City != "" {
		if city, err := a.lookupCity(ctx, loc.City); err != nil {
			log.Printf("Geo: city lookup failed for %s: %v", loc.City, err)
		} else if city != nil && city.Population > 0 {
			pop := city.Population
			rec.Population = &pop
			sources = append(sources, "city-api")
		}
	}

	rec.Sources = strings.Join(sources, ",")
	return rec, nil
}

// lookupLocation tries the primary geolocation API, then the fallback.
func (a *Aggregator) lookupLocation(ctx context.Context, ip string) (*ipLocation, string, error) {
	loc, primaryErr := a.lookupPrimary(ctx, ip)
	if primaryErr == nil {
		return loc, "ipapi", nil
	}
	log.Printf("Geo: primary geolocation failed, trying fallback: %v", primaryErr)

	loc, fallbackErr := a.lookupFallback(ctx, ip)
	if fallbackErr == nil {
		return loc, "ip-api", nil
	}
	return nil, "", fmt.Errorf("primary: %v; fallback: %v", primaryErr, fallbackErr)
}

func (a *Aggregator) lookupPrimary(ctx context.Context, ip string) (*ipLocation, error) {
	path := "/json/"
	if ip != "" {
		path = "/" + ip + "/json/"
	}

	var loc ipLocation
	if err := a.getJSON(ctx, a.geoBaseURL+path, nil, &loc); err != nil {
		return nil, err
	}
	if loc.IP == "" {
		loc.IP = ip
	}
	if loc.CountryCode == "" {
		return nil, fmt.Errorf("response missing country code")
	}
	return &loc, nil
}

func (a *Aggregator) lookupFallback(ctx context.Context, ip string) (*ipLocation, error) {
	var fb fallbackLocation
	if err := a.getJSON(ctx, a.geoFallbackURL+"/json/"+ip, nil, &fb); err != nil {
		return nil, err
	}
	if fb.Status != "success" {
		return nil, fmt.Errorf("fallback returned status %q", fb.Status)
	}
	return &ipLocation{
		IP:          fb.Query,
		City:        fb.City,
		Region:      fb.RegionName,
		CountryCode: fb.CountryCode,
		CountryName: fb.Country,
		Latitude:    fb.Lat,
		Longitude:   fb.Lon,
		Timezone:    fb.Timezone,
	}, nil
}

func (a *Aggregator) lookupCountry(ctx context.Context, code string) (*countryInfo, error) {
	var countries []countryInfo
	if err := a.getJSON(ctx, a.countryBaseURL+"/v3.1/alpha/"+code, nil, &countries); err != nil {
		return nil, err
	}
	if len(countries) == 0 {
		return nil, fmt.Errorf("no country metadata for %s", code)
	}
	return &countries[0], nil
}

func (a *Aggregator) lookupCity(ctx context.Context, name string) (*cityInfo, error) {
	headers := map[string]string{}
	if a.cityAPIKey != "" {
		headers["X-Api-Key"] = a.cityAPIKey
	}

	var cities []cityInfo
	endpoint := a.cityBaseURL + "/v1/city?name=" + url.QueryEscape(name)
	if err := a.getJSON(ctx, endpoint, headers, &cities); err != nil {
		return nil, err
	}
	if len(cities) == 0 {
		return nil, nil
	}
	return &cities[0], nil
}

func (a *Aggregator) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
