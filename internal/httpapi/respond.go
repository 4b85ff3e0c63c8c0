package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	JobID   string            `json:"jobId,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, errorResponse{Error: code, Message: message})
}

func failValidation(c echo.Context, fields map[string]string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{
		Error:   "validation_error",
		Message: "Request validation failed",
		Fields:  fields,
	})
}

func internalError(c echo.Context, message string) error {
	return fail(c, http.StatusInternalServerError, "internal_error", message)
}

func notFound(c echo.Context, message string) error {
	return fail(c, http.StatusNotFound, "not_found", message)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// decodeJSONBody decodes an optional JSON body. An empty body leaves dst
// untouched.
func decodeJSONBody(c echo.Context, dst any) error {
	body := c.Request().Body
	if body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parsePositiveInt(raw string, fallback, minValue, maxValue int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if v < minValue || v > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return v, nil
}

// redactSecret hides the secret query parameter in logged URIs
func redactSecret(uri string) string {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	if !q.Has("secret") {
		return uri
	}
	q.Set("secret", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
