package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.sms-activate.org/stubs/handler_api.php"

// statusCancelActivation is the setStatus value that releases a number.
const statusCancelActivation = "8"

// Vendor error vocabulary. Codes missing from the map are treated as
// non-retryable.
var smsActivateRetryable = map[string]bool{
	"NO_NUMBERS":       true,
	"NO_CONNECTION":    true,
	"ACCOUNT_INACTIVE": true,
	"NO_BALANCE":       false,
	"BAD_ACTION":       false,
	"BAD_SERVICE":      false,
	"BAD_KEY":          false,
	"BAD_STATUS":       false,
	"ERROR_SQL":        false,
	"SQL_ERROR":        false,
	"NO_ACTIVATION":    false,
	"BANNED":           false,
	"WRONG_SERVICE":    false,
	"NO_KEY":           false,
}

// Service identifiers used by the catalog are full names; the vendor API
// wants its own short codes.
var smsActivateServiceCodes = map[string]string{
	"telegram": "tg",
	"whatsapp": "wa",
	"discord":  "ds",
	"viber":    "vi",
	"signal":   "sg",
}

// SMSActivate talks the sms-activate text protocol: a single GET endpoint
// with an action parameter, answering either "ERROR_CODE" or
// "ACCESS_*:field:field" style lines.
type SMSActivate struct {
	apiKey string
	apiURL string
	client *http.Client
}

var _ Provider = (*SMSActivate)(nil)

func NewSMSActivate(cfg Config) *SMSActivate {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SMSActivate{apiKey: cfg.APIKey, apiURL: apiURL, client: client}
}

func (s *SMSActivate) Name() string { return "smsactivate" }

func (s *SMSActivate) GetAvailableCount(ctx context.Context, countryCode, serviceCode string) (int, error) {
	resp, err := s.request(ctx, url.Values{
		"action":  {"getNumbersStatus"},
		"country": {strings.ToLower(countryCode)},
	})
	if err != nil {
		return 0, err
	}
	var counts map[string]string
	if err := json.Unmarshal([]byte(resp), &counts); err != nil {
		return 0, fmt.Errorf("parse getNumbersStatus response error: %w", err)
	}
	// Keys look like "tg_0": "<count>".
	raw, ok := counts[s.serviceCode(serviceCode)+"_0"]
	if !ok {
		return 0, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse numbers count %q error: %w", raw, err)
	}
	return count, nil
}

func (s *SMSActivate) ReserveNumber(ctx context.Context, countryCode, serviceCode string) (ReserveResult, error) {
	resp, err := s.request(ctx, url.Values{
		"action":  {"getNumber"},
		"service": {s.serviceCode(serviceCode)},
		"country": {strings.ToLower(countryCode)},
	})
	if err != nil {
		return ReserveResult{}, err
	}
	// "ACCESS_NUMBER:<activation id>:<phone>"
	parts := strings.Split(resp, ":")
	if len(parts) != 3 || parts[0] != "ACCESS_NUMBER" {
		return ReserveResult{}, &Error{Code: "BAD_RESPONSE", Message: resp, Retryable: true}
	}
	phone := parts[2]
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return ReserveResult{PhoneNumber: phone, ExternalOrderID: parts[1]}, nil
}

func (s *SMSActivate) PollMessages(ctx context.Context, externalOrderID string) ([]SMS, error) {
	resp, err := s.request(ctx, url.Values{
		"action": {"getStatus"},
		"id":     {externalOrderID},
	})
	if err != nil {
		return nil, err
	}
	// "STATUS_OK:<text>" carries the message, "STATUS_WAIT_CODE" means
	// nothing yet.
	if text, ok := strings.CutPrefix(resp, "STATUS_OK:"); ok {
		return []SMS{{Text: text, ReceivedAt: time.Now()}}, nil
	}
	return nil, nil
}

func (s *SMSActivate) CancelReservation(ctx context.Context, externalOrderID string) error {
	resp, err := s.request(ctx, url.Values{
		"action": {"setStatus"},
		"status": {statusCancelActivation},
		"id":     {externalOrderID},
	})
	if err != nil {
		var provErr *Error
		if errors.As(err, &provErr) {
			// The rental may have ended on the vendor side already.
			if provErr.Code == "ALREADY_CANCEL" || provErr.Code == "ALREADY_FINISH" || provErr.Code == "STATUS_CANCEL" {
				return nil
			}
		}
		return err
	}
	if resp != "ACCESS_CANCEL" {
		return &Error{Code: "BAD_RESPONSE", Message: resp, Retryable: false}
	}
	return nil
}

func (s *SMSActivate) GetBalance(ctx context.Context) (float64, error) {
	resp, err := s.request(ctx, url.Values{"action": {"getBalance"}})
	if err != nil {
		return 0, err
	}
	// "ACCESS_BALANCE:<amount>"
	raw, ok := strings.CutPrefix(resp, "ACCESS_BALANCE:")
	if !ok {
		return 0, &Error{Code: "BAD_RESPONSE", Message: resp, Retryable: false}
	}
	balance, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q error: %w", raw, err)
	}
	return balance, nil
}

func (s *SMSActivate) request(ctx context.Context, params url.Values) (string, error) {
	params.Set("api_key", s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request error: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", &Error{Code: "NO_CONNECTION", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Code: "BAD_STATUS_CODE", Message: strconv.Itoa(resp.StatusCode), Retryable: resp.StatusCode >= 500}
	}
	answer := strings.TrimSpace(string(body))
	if code, found := vendorErrorCode(answer); found {
		return "", &Error{Code: code, Message: answer, Retryable: smsActivateRetryable[code]}
	}
	return answer, nil
}

func (s *SMSActivate) serviceCode(serviceName string) string {
	if code, ok := smsActivateServiceCodes[strings.ToLower(serviceName)]; ok {
		return code
	}
	return strings.ToLower(serviceName)
}

// vendorErrorCode classifies an answer as an error line. Error answers are a
// bare code, possibly with a detail suffix ("ERROR_SQL:...").
func vendorErrorCode(answer string) (string, bool) {
	code, _, _ := strings.Cut(answer, ":")
	if _, known := smsActivateRetryable[code]; known {
		return code, true
	}
	for _, c := range []string{"ALREADY_CANCEL", "ALREADY_FINISH", "STATUS_CANCEL", "CANT_CANCEL", "INVALID_PHONE"} {
		if code == c {
			return code, true
		}
	}
	return "", false
}
