// Package logistics adapts the Logistics service to ports.LogisticsService.
package logistics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/adapters/payload"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/httpclient"
)

var _ ports.LogisticsService = (*HTTPClient)(nil)

// Response aliases, highest priority first.
var (
	shipmentIDKeys    = []string{"id", "shipping_id", "reference"}
	trackingKeys      = []string{"tracking_number", "trackingNumber", "tracking"}
	statusKeys        = []string{"status", "estado"}
	transportKeys     = []string{"transport_type", "transportType", "type"}
	estimatedKeys     = []string{"estimated_delivery_at", "estimatedDeliveryAt"}
	costKeys          = []string{"total_cost", "cost", "costo", "price"}
	estimatedDaysKeys = []string{"estimated_days", "estimatedDays", "days"}
)

type HTTPClient struct {
	client *httpclient.Client
}

func NewHTTPClient(client *httpclient.Client) *HTTPClient {
	return &HTTPClient{client: client}
}

type addressBody struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type productBody struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

type shipmentBody struct {
	OrderID         int64         `json:"order_id"`
	UserID          int64         `json:"user_id"`
	DeliveryAddress addressBody   `json:"delivery_address"`
	TransportType   string        `json:"transport_type"`
	Products        []productBody `json:"products"`
}

type quoteBody struct {
	DeliveryAddress addressBody   `json:"delivery_address"`
	Products        []productBody `json:"products"`
	TransportType   string        `json:"transport_type,omitempty"`
}

func (c *HTTPClient) CreateShipment(ctx context.Context, req entity.ShipmentRequest) (*entity.Shipment, error) {
	body := shipmentBody{
		OrderID:         req.OrderID,
		UserID:          req.UserID,
		DeliveryAddress: toAddressBody(req.Address),
		TransportType:   req.TransportType,
		Products:        toProductBodies(req.Products),
	}
	resp, err := c.client.Post(ctx, "/shipping", body, http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("logistics: create shipment for order %d: %w", req.OrderID, err)
	}

	obj := unwrap(resp.Object())
	id, err := payload.Require(obj, "shipment id", shipmentIDKeys...)
	if err != nil {
		return nil, fmt.Errorf("logistics: create shipment for order %d: %w", req.OrderID, err)
	}
	s := toShipment(obj)
	s.ID = id
	return &s, nil
}

func (c *HTTPClient) CancelShipment(ctx context.Context, shipmentID string) (*entity.CancelResult, error) {
	resp, err := c.client.Post(ctx, "/shipping/"+url.PathEscape(shipmentID)+"/cancel", struct{}{}, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("logistics: cancel shipment %s: %w", shipmentID, err)
	}
	return &entity.CancelResult{
		ShipmentID: shipmentID,
		Status:     payload.String(unwrap(resp.Object()), statusKeys...),
	}, nil
}

func (c *HTTPClient) GetShipment(ctx context.Context, shipmentID string) (*entity.Shipment, error) {
	resp, err := c.client.Get(ctx, "/shipping/"+url.PathEscape(shipmentID), nil)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, entity.ErrShipmentNotFound.Withf("shipment %s not found", shipmentID).Wrap(err)
		}
		return nil, fmt.Errorf("logistics: get shipment %s: %w", shipmentID, err)
	}
	s := toShipment(unwrap(resp.Object()))
	if s.ID == "" {
		s.ID = shipmentID
	}
	return &s, nil
}

func (c *HTTPClient) ListShipments(ctx context.Context, f entity.ShipmentFilter) ([]entity.Shipment, error) {
	q := url.Values{}
	if f.UserID != 0 {
		q.Set("user_id", strconv.FormatInt(f.UserID, 10))
	}
	for k, v := range map[string]string{"status": f.Status, "from_date": f.FromDate, "to_date": f.ToDate} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	resp, err := c.client.Get(ctx, "/shipping", q)
	if err != nil {
		return nil, fmt.Errorf("logistics: list shipments: %w", err)
	}
	var out []entity.Shipment
	for _, m := range payload.List(resp.Data, "shipments", "items", "results", "data") {
		out = append(out, toShipment(m))
	}
	return out, nil
}

func (c *HTTPClient) GetTransportMethods(ctx context.Context) ([]entity.TransportMethod, error) {
	resp, err := c.client.Get(ctx, "/shipping/transport-methods", nil)
	if err != nil {
		return nil, fmt.Errorf("logistics: transport methods: %w", err)
	}
	var out []entity.TransportMethod
	for _, m := range payload.List(resp.Data, "transport_methods", "methods", "items", "data") {
		tm := entity.TransportMethod{
			Type: payload.String(m, "type", "transport_type", "id"),
			Name: payload.String(m, "name", "nombre", "description"),
		}
		if n, ok := payload.Int(m, estimatedDaysKeys...); ok {
			tm.EstimatedDays = int(n)
		}
		out = append(out, tm)
	}
	return out, nil
}

func (c *HTTPClient) CalculateShippingCost(ctx context.Context, req entity.QuoteRequest) (*entity.Quote, error) {
	body := quoteBody{
		DeliveryAddress: toAddressBody(req.Address),
		Products:        toProductBodies(req.Products),
		TransportType:   req.TransportType,
	}
	resp, err := c.client.Post(ctx, "/shipping/cost", body, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("logistics: shipping cost: %w", err)
	}
	obj := unwrap(resp.Object())
	q := &entity.Quote{
		TransportType: payload.String(obj, transportKeys...),
		Currency:      payload.String(obj, "currency", "moneda"),
	}
	if q.TransportType == "" {
		q.TransportType = req.TransportType
	}
	q.Cost, _ = payload.Decimal(obj, costKeys...)
	if n, ok := payload.Int(obj, estimatedDaysKeys...); ok {
		q.EstimatedDays = int(n)
	}
	return q, nil
}

// unwrap returns the object nested under a known envelope key, or m.
func unwrap(m map[string]any) map[string]any {
	if nested := payload.Object(m, "shipment", "shipping", "data"); nested != nil {
		return nested
	}
	return m
}

func toShipment(m map[string]any) entity.Shipment {
	return entity.Shipment{
		ID:                  payload.String(m, shipmentIDKeys...),
		TrackingNumber:      payload.String(m, trackingKeys...),
		Status:              payload.String(m, statusKeys...),
		TransportType:       payload.String(m, transportKeys...),
		EstimatedDeliveryAt: payload.String(m, estimatedKeys...),
	}
}

func toAddressBody(a entity.DeliveryAddress) addressBody {
	return addressBody{Street: a.Street, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country}
}

func toProductBodies(ps []entity.ShipmentProduct) []productBody {
	out := make([]productBody, len(ps))
	for i, p := range ps {
		out[i] = productBody{ID: p.ID, Quantity: p.Quantity}
	}
	return out
}
