package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/MrEthical07/zuauth/pcd/zkticket"
)

// DefaultZupassURL is the public Zupass client.
const DefaultZupassURL = "https://zupass.org"

// Argument type names understood by the Zupass prove screen.
const (
	ArgumentPCD         = "PCD"
	ArgumentStringArray = "StringArray"
	ArgumentToggleList  = "ToggleList"
	ArgumentBigInt      = "BigInt"
)

const (
	eddsaTicketPCDType       = "eddsa-ticket-pcd"
	semaphoreIdentityPCDType = "semaphore-identity-pcd"
)

var ErrInvalidWatermark = errors.New("watermark must be a non-negative decimal integer")

// FieldsToReveal selects which ticket fields the proof discloses.
type FieldsToReveal struct {
	RevealTicketID            bool `json:"revealTicketId,omitempty"`
	RevealEventID             bool `json:"revealEventId,omitempty"`
	RevealProductID           bool `json:"revealProductId,omitempty"`
	RevealAttendeeEmail       bool `json:"revealAttendeeEmail,omitempty"`
	RevealAttendeeSemaphoreID bool `json:"revealAttendeeSemaphoreId,omitempty"`
	RevealTimestampConsumed   bool `json:"revealTimestampConsumed,omitempty"`
	RevealTimestampSigned     bool `json:"revealTimestampSigned,omitempty"`
	RevealIsConsumed          bool `json:"revealIsConsumed,omitempty"`
	RevealIsRevoked           bool `json:"revealIsRevoked,omitempty"`
}

// DefaultFields reveals the attendee email with the event and product.
func DefaultFields() FieldsToReveal {
	return FieldsToReveal{
		RevealAttendeeEmail: true,
		RevealEventID:       true,
		RevealProductID:     true,
	}
}

// AnonymousFields reveals what an anonymous login returns to the browser.
func AnonymousFields() FieldsToReveal {
	return FieldsToReveal{
		RevealTicketID:            true,
		RevealAttendeeSemaphoreID: true,
		RevealEventID:             true,
		RevealProductID:           true,
	}
}

// ValidatorParams narrows which tickets the prove screen offers.
type ValidatorParams struct {
	EventIDs        []string `json:"eventIds"`
	ProductIDs      []string `json:"productIds"`
	NotFoundMessage string   `json:"notFoundMessage,omitempty"`
}

// Argument is one entry of a prove request's args object.
type Argument struct {
	ArgumentType    string           `json:"argumentType"`
	PCDType         string           `json:"pcdType,omitempty"`
	Value           any              `json:"value,omitempty"`
	UserProvided    bool             `json:"userProvided"`
	ValidatorParams *ValidatorParams `json:"validatorParams,omitempty"`
}

// ProofRequest asks a prover for a ticket proof bound to one nonce.
type ProofRequest struct {
	// Watermark is the nonce from the server. It also serves as the
	// external nullifier.
	Watermark       string
	ValidEventIDs   []string
	ValidProductIDs []string
	Fields          FieldsToReveal
}

// Validate checks that the watermark is a canonical decimal integer.
func (r ProofRequest) Validate() error {
	n, ok := new(big.Int).SetString(r.Watermark, 10)
	if !ok || n.Sign() < 0 {
		return ErrInvalidWatermark
	}
	return nil
}

// Args renders the request in the Zupass argument layout.
func (r ProofRequest) Args() map[string]Argument {
	var validEventIDs any
	if len(r.ValidEventIDs) != 0 {
		validEventIDs = r.ValidEventIDs
	}

	return map[string]Argument{
		"ticket": {
			ArgumentType: ArgumentPCD,
			PCDType:      eddsaTicketPCDType,
			UserProvided: true,
			ValidatorParams: &ValidatorParams{
				EventIDs:        nonNil(r.ValidEventIDs),
				ProductIDs:      nonNil(r.ValidProductIDs),
				NotFoundMessage: "No eligible PCDs found",
			},
		},
		"identity": {
			ArgumentType: ArgumentPCD,
			PCDType:      semaphoreIdentityPCDType,
			UserProvided: true,
		},
		"validEventIds": {
			ArgumentType: ArgumentStringArray,
			Value:        validEventIDs,
		},
		"fieldsToReveal": {
			ArgumentType: ArgumentToggleList,
			Value:        r.Fields,
		},
		"watermark": {
			ArgumentType: ArgumentBigInt,
			Value:        r.Watermark,
		},
		"externalNullifier": {
			ArgumentType: ArgumentBigInt,
			Value:        r.Watermark,
		},
	}
}

type getRequestOptions struct {
	GenericProveScreen bool   `json:"genericProveScreen"`
	Title              string `json:"title"`
	Description        string `json:"description"`
}

type getRequest struct {
	Type      string              `json:"type"`
	ReturnURL string              `json:"returnUrl"`
	Args      map[string]Argument `json:"args"`
	PCDType   string              `json:"pcdType"`
	Options   getRequestOptions   `json:"options"`
}

// ProveURL builds the Zupass URL that opens the prove screen for req. When
// the proof is made, Zupass redirects the popup to returnURL with a proof
// query parameter.
func ProveURL(zupassURL, returnURL string, req ProofRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if zupassURL == "" {
		zupassURL = DefaultZupassURL
	}

	raw, err := json.Marshal(getRequest{
		Type:      "Get",
		ReturnURL: returnURL,
		Args:      req.Args(),
		PCDType:   zkticket.PCDType,
		Options: getRequestOptions{
			GenericProveScreen: true,
			Title:              "ZKEdDSA Ticket Proof",
			Description:        "ZKEdDSA Ticket PCD Request",
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode prove request: %w", err)
	}

	return strings.TrimSuffix(zupassURL, "/") + "#/prove?request=" + url.QueryEscape(string(raw)), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
