// Package geo резолвит адрес клиента в координаты через Nominatim (OSM).
// Шаг необязательный: ошибки и таймауты здесь не блокируют заказ.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"klimatik/internal/config"
	"klimatik/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNoResults — адрес геокодеру незнаком.
var ErrNoResults = fmt.Errorf("geocoder: no results")

type NominatimResolver struct {
	baseURL   string
	userAgent string
	client    *http.Client
	// Публичный Nominatim требует не больше одного запроса в секунду.
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func NewNominatimResolver(cfg config.GeocoderConfig, logger *zerolog.Logger) *NominatimResolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NominatimResolver{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		logger:    logger,
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Resolve ищет координаты по адресу из контакта. Дедлайн задает вызывающий.
func (r *NominatimResolver) Resolve(ctx context.Context, contact models.Contact) (*models.Location, error) {
	if contact.Address == "" {
		return nil, ErrNoResults
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("q", contact.Address)
	query.Set("format", "json")
	query.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder: unexpected status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("geocoder: decode response: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoder: bad latitude %q", results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoder: bad longitude %q", results[0].Lon)
	}

	r.logger.Debug().
		Str("address", contact.Address).
		Float64("lat", lat).
		Float64("lon", lon).
		Msg("Address resolved")

	return &models.Location{Latitude: lat, Longitude: lon}, nil
}
