package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
)

const (
	// maxTotalCents is the largest total a decimal(12,2) column holds.
	maxTotalCents = 999_999_999_999
	// MaxBodyBytes bounds a submission of 100 fully populated items.
	MaxBodyBytes = 256 << 10
)

var validate = newValidator()

// newValidator reads the same binding tags gin does and reports fields by
// their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ItemInput is one submitted line item. Pointers tell a missing field from
// an explicit zero. The order total is bounded separately from the price cap.
type ItemInput struct {
	ID       string   `json:"id"       binding:"max=128"`
	Name     string   `json:"name"     binding:"required,max=200"`
	Price    *float64 `json:"price"    binding:"required,min=0,max=10000000"`
	Quantity *int     `json:"quantity" binding:"required,min=1,max=1000"`
	Notes    string   `json:"notes"    binding:"max=1000"`
}

// CreateRequest is the raw order submission body.
type CreateRequest struct {
	Items          []ItemInput `json:"items"           binding:"required,min=1,max=100,dive"`
	TableID        string      `json:"table_id"        binding:"max=64"`
	OrganizationID string      `json:"organization_id" binding:"required_without=TableID,max=64"`
	CustomerName   string      `json:"customer_name"   binding:"max=200"`
	CustomerNotes  string      `json:"customer_notes"  binding:"max=1000"`
	SessionID      string      `json:"session_id"      binding:"max=128"`
}

// NewOrder is a validated, normalized submission.
type NewOrder struct {
	Items          []models.OrderItem
	TableID        string
	OrganizationID string
	CustomerName   string
	CustomerNotes  string
	SessionID      string
}

// StatusRequest is the raw status update body.
type StatusRequest struct {
	Status *string `json:"status"`
}

// DecodeCreate strictly decodes and validates an order submission.
func DecodeCreate(r io.Reader) (*NewOrder, error) {
	var req CreateRequest
	if err := decodeStrict(r, &req); err != nil {
		return nil, err
	}
	return req.Validate()
}

// DecodeStatus strictly decodes a status update and returns the requested
// status.
func DecodeStatus(r io.Reader) (models.OrderStatus, error) {
	var req StatusRequest
	if err := decodeStrict(r, &req); err != nil {
		return "", err
	}
	if req.Status == nil || strings.TrimSpace(*req.Status) == "" {
		return "", apperr.Invalid("status", "is required")
	}
	status, ok := ParseStatus(*req.Status)
	if !ok {
		return "", apperr.Invalid("status", fmt.Sprintf("unknown status %q", *req.Status))
	}
	return status, nil
}

// Validate trims the submission, checks every field and collects all
// problems at once.
func (req CreateRequest) Validate() (*NewOrder, error) {
	req.TableID = strings.TrimSpace(req.TableID)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerNotes = strings.TrimSpace(req.CustomerNotes)
	req.SessionID = strings.TrimSpace(req.SessionID)
	items := make([]ItemInput, len(req.Items))
	for i, item := range req.Items {
		item.ID = strings.TrimSpace(item.ID)
		item.Name = strings.TrimSpace(item.Name)
		item.Notes = strings.TrimSpace(item.Notes)
		items[i] = item
	}
	if req.Items != nil {
		req.Items = items
	}

	if err := validate.Struct(req); err != nil {
		return nil, translateValidation(err)
	}

	out := &NewOrder{
		TableID:        req.TableID,
		OrganizationID: req.OrganizationID,
		CustomerName:   req.CustomerName,
		CustomerNotes:  req.CustomerNotes,
		SessionID:      req.SessionID,
		Items:          make([]models.OrderItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		out.Items = append(out.Items, models.OrderItem{
			MenuItemID: item.ID,
			Name:       item.Name,
			Price:      *item.Price,
			Quantity:   *item.Quantity,
			Notes:      item.Notes,
		})
	}
	if totalCents(out.Items) > maxTotalCents {
		return nil, apperr.Invalid("items", "order total is too large")
	}
	return out, nil
}

// translateValidation maps validator errors onto field errors named by JSON
// path, such as items[0].price.
func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("", err.Error())
	}
	out := &apperr.ValidationError{}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out.Add(field, fieldMessage(fe))
	}
	return out.OrNil()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "organization_id is required when table_id is absent"
	case "min":
		switch {
		case fe.Kind() == reflect.Slice:
			return "at least one item is required"
		case fe.Field() == "quantity":
			return "must be a positive integer"
		case fe.Param() == "0":
			return "must not be negative"
		}
		return "must be at least " + fe.Param()
	case "max":
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		case reflect.Slice:
			return fmt.Sprintf("at most %s items per order", fe.Param())
		}
		return "must be at most " + fe.Param()
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// decodeStrict rejects unknown fields, mistyped values and trailing data.
func decodeStrict(r io.Reader, dst interface{}) error {
	body, err := io.ReadAll(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return apperr.Invalid("", "request body could not be read")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return apperr.Invalid("", "request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return apperr.Invalid("", "request body must contain a single JSON object")
	}
	return nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return apperr.Invalid(field, fmt.Sprintf("must be %s", typeErr.Type.String()))
	case errors.As(err, &syntaxErr):
		return apperr.Invalid("", fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		name := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperr.Invalid(name, "unknown field")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Invalid("", "malformed JSON")
	default:
		return apperr.Invalid("", "invalid request body")
	}
}

// Total sums price times quantity, rounded to cents.
func Total(items []models.OrderItem) float64 {
	return float64(totalCents(items)) / 100
}

func totalCents(items []models.OrderItem) int64 {
	var cents int64
	for _, item := range items {
		cents += toCents(item.Price) * int64(item.Quantity)
	}
	return cents
}

func toCents(price float64) int64 {
	if price >= 0 {
		return int64(price*100 + 0.5)
	}
	return int64(price*100 - 0.5)
}
