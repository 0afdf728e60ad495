package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CommandType string

const (
	CommandBook        CommandType = "BOOK"
	CommandCancel      CommandType = "CANCEL"
	CommandBlock       CommandType = "BLOCK"
	CommandUnblock     CommandType = "UNBLOCK"
	CommandUpdatePrice CommandType = "UPDATE_PRICE"
)

func (t CommandType) Valid() bool {
	switch t {
	case CommandBook, CommandCancel, CommandBlock, CommandUnblock, CommandUpdatePrice:
		return true
	}
	return false
}

type CommandStatus string

const (
	CommandExecuted  CommandStatus = "EXECUTED"
	CommandRejected  CommandStatus = "REJECTED"
	CommandDuplicate CommandStatus = "DUPLICATE"
	CommandFailed    CommandStatus = "FAILED"
)

// CommandPayload is the type-specific part of a calendar command. Each command
// type has exactly one payload variant.
type CommandPayload interface {
	CommandType() CommandType
}

type BookPayload struct {
	ReservationID string `json:"reservation_id"`
	Channel       string `json:"channel,omitempty"`
	Adults        int    `json:"adults,omitempty"`
	Children      int    `json:"children,omitempty"`
}

type CancelPayload struct {
	ReservationID string `json:"reservation_id"`
}

type BlockPayload struct {
	Reason      string `json:"reason,omitempty"`
	Maintenance bool   `json:"maintenance,omitempty"`
}

type UnblockPayload struct {
	Reason string `json:"reason,omitempty"`
}

type UpdatePricePayload struct {
	Price decimal.Decimal `json:"price"`
}

func (BookPayload) CommandType() CommandType        { return CommandBook }
func (CancelPayload) CommandType() CommandType      { return CommandCancel }
func (BlockPayload) CommandType() CommandType       { return CommandBlock }
func (UnblockPayload) CommandType() CommandType     { return CommandUnblock }
func (UpdatePricePayload) CommandType() CommandType { return CommandUpdatePrice }

// DecodePayload restores the payload variant for t from its JSON form.
func DecodePayload(t CommandType, raw []byte) (CommandPayload, error) {
	var (
		p   CommandPayload
		err error
	)
	switch t {
	case CommandBook:
		var v BookPayload
		err = unmarshalOptional(raw, &v)
		p = v
	case CommandCancel:
		var v CancelPayload
		err = unmarshalOptional(raw, &v)
		p = v
	case CommandBlock:
		var v BlockPayload
		err = unmarshalOptional(raw, &v)
		p = v
	case CommandUnblock:
		var v UnblockPayload
		err = unmarshalOptional(raw, &v)
		p = v
	case CommandUpdatePrice:
		var v UpdatePricePayload
		err = unmarshalOptional(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown command type %q", t)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func unmarshalOptional(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// CalendarCommand is one immutable entry of the command log.
type CalendarCommand struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID int64          `json:"organization_id"`
	PropertyID     int64          `json:"property_id"`
	Type           CommandType    `json:"type"`
	Range          DateRange      `json:"range"`
	Source         string         `json:"source"`
	Actor          string         `json:"actor"`
	Payload        CommandPayload `json:"payload"`
	Status         CommandStatus  `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	ExecutedAt     time.Time      `json:"executed_at"`
}

func (c CalendarCommand) PayloadJSON() ([]byte, error) {
	if c.Payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Payload)
}
