// Package event parses RDS event notifications delivered through SNS.
package event

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/tidwall/gjson"
)

var (
	// ErrNoRecords is returned for an SNS event carrying no records.
	ErrNoRecords = errors.New("sns event has no records")
	// ErrMalformedMessage is returned when the message body is not a JSON object.
	ErrMalformedMessage = errors.New("malformed rds event message")
	// ErrMissingSourceID is returned when the message names no source resource.
	ErrMissingSourceID = errors.New("rds event message has no Source ID")
)

// Notification is one RDS event as published to SNS.
type Notification struct {
	SourceID     string
	SourceARN    string
	EventSource  string
	EventTime    string
	EventID      string
	EventMessage string

	// SNS envelope
	MessageID string
	TopicARN  string
}

// ParseSNS extracts one notification per record, in delivery order.
func ParseSNS(ev events.SNSEvent) ([]Notification, error) {
	if len(ev.Records) == 0 {
		return nil, ErrNoRecords
	}

	out := make([]Notification, 0, len(ev.Records))
	for i, rec := range ev.Records {
		n, err := ParseMessage(rec.SNS.Message)
		if err != nil {
			return nil, fmt.Errorf("record %d (message %s): %w", i, rec.SNS.MessageID, err)
		}
		n.MessageID = rec.SNS.MessageID
		n.TopicARN = rec.SNS.TopicArn
		out = append(out, n)
	}
	return out, nil
}

// ParseMessage parses the JSON body RDS publishes, e.g.
//
//	{"Event Source":"db-instance","Source ID":"orders-3","Event Message":"DB instance created", ...}
func ParseMessage(msg string) (Notification, error) {
	if !gjson.Valid(msg) {
		return Notification{}, fmt.Errorf("%w: invalid json", ErrMalformedMessage)
	}
	body := gjson.Parse(msg)
	if !body.IsObject() {
		return Notification{}, fmt.Errorf("%w: expected object, got %s", ErrMalformedMessage, body.Type)
	}

	sourceID := body.Get("Source ID")
	if !sourceID.Exists() || sourceID.Type != gjson.String || strings.TrimSpace(sourceID.Str) == "" {
		return Notification{}, ErrMissingSourceID
	}

	return Notification{
		SourceID:     strings.TrimSpace(sourceID.Str),
		SourceARN:    body.Get("Source ARN").String(),
		EventSource:  body.Get("Event Source").String(),
		EventTime:    body.Get("Event Time").String(),
		EventID:      eventID(body.Get("Event ID").String()),
		EventMessage: body.Get("Event Message").String(),
	}, nil
}

// eventID trims the documentation URL RDS prefixes to event IDs
// ("http://docs.amazonwebservices.com/...#RDS-EVENT-0005").
func eventID(raw string) string {
	if i := strings.LastIndex(raw, "#"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}
