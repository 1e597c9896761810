package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dispute-reconciliation-backend/internal/models"
)

// ErrMalformedPayload signals a gateway response the engine cannot use.
// Callers recover by recording a parse-error reconciliation result.
var ErrMalformedPayload = errors.New("extraction: malformed payload")

// Payload is the extraction gateway's envelope for one response letter.
// Unrecognized fields are ignored.
type Payload struct {
	ResponseType string        `json:"response_type"`
	ResponseDate string        `json:"response_date"`
	Items        []gatewayItem `json:"items"`
}

type gatewayItem struct {
	CreditorName  string  `json:"creditor_name"`
	AccountNumber string  `json:"account_number"`
	Result        string  `json:"result"`
	Reason        string  `json:"reason"`
	ChangesMade   *string `json:"changes_made"`
}

// ParsedPayload carries the validated items the matcher operates on.
type ParsedPayload struct {
	ResponseType string
	ResponseDate string
	Items        []models.ExtractedItem
}

// ParsePayload converts a raw gateway body into extracted items. This is the
// single place loosely-typed gateway JSON crosses into typed engine input;
// downstream code never touches the raw payload.
func ParsePayload(raw []byte) (*ParsedPayload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	var env Payload
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Items == nil {
		return nil, fmt.Errorf("%w: missing items array", ErrMalformedPayload)
	}

	parsed := &ParsedPayload{
		ResponseType: env.ResponseType,
		ResponseDate: env.ResponseDate,
		Items:        make([]models.ExtractedItem, 0, len(env.Items)),
	}
	for _, it := range env.Items {
		item := models.ExtractedItem{
			CreditorName:  strings.TrimSpace(it.CreditorName),
			AccountNumber: strings.TrimSpace(it.AccountNumber),
			Result:        strings.TrimSpace(it.Result),
			Reason:        strings.TrimSpace(it.Reason),
		}
		if it.ChangesMade != nil {
			item.ChangesMade = strings.TrimSpace(*it.ChangesMade)
		}
		parsed.Items = append(parsed.Items, item)
	}
	return parsed, nil
}
