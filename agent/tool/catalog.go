package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/xeipuuv/gojsonschema"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

// The closed tool catalog. The conversational agent may only call these;
// anything else is rejected before touching session state.
const (
	ToolIdentifyUser         = "identify_user"
	ToolFetchSlots           = "fetch_slots"
	ToolBookAppointment      = "book_appointment"
	ToolRetrieveAppointments = "retrieve_appointments"
	ToolCancelAppointment    = "cancel_appointment"
	ToolModifyAppointment    = "modify_appointment"
	ToolEndConversation      = "end_conversation"
)

var catalogOrder = []string{
	ToolIdentifyUser,
	ToolFetchSlots,
	ToolBookAppointment,
	ToolRetrieveAppointments,
	ToolCancelAppointment,
	ToolModifyAppointment,
	ToolEndConversation,
}

// Tools an anonymous caller may use. Everything touching a specific
// caller's appointments requires identification first.
var anonymousAllowed = map[string]struct{}{
	ToolIdentifyUser:    {},
	ToolFetchSlots:      {},
	ToolEndConversation: {},
}

var argSchemas = map[string]string{
	ToolIdentifyUser: `{
		"type": "object",
		"required": ["contact_number"],
		"properties": {
			"contact_number": {"type": "string", "minLength": 7},
			"name": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	ToolFetchSlots: `{
		"type": "object",
		"properties": {
			"from": {"type": "string"},
			"to": {"type": "string"},
			"time_of_day": {"type": "string", "enum": ["morning", "afternoon", "evening"]}
		},
		"additionalProperties": false
	}`,
	ToolBookAppointment: `{
		"type": "object",
		"required": ["date", "time"],
		"properties": {
			"date": {"type": "string"},
			"time": {"type": "string"},
			"name": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	ToolRetrieveAppointments: `{
		"type": "object",
		"properties": {},
		"additionalProperties": false
	}`,
	ToolCancelAppointment: `{
		"type": "object",
		"required": ["appointment_id"],
		"properties": {
			"appointment_id": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`,
	ToolModifyAppointment: `{
		"type": "object",
		"required": ["appointment_id", "new_date", "new_time"],
		"properties": {
			"appointment_id": {"type": "string", "minLength": 1},
			"new_date": {"type": "string"},
			"new_time": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	ToolEndConversation: `{
		"type": "object",
		"properties": {
			"reason": {"type": "string"}
		},
		"additionalProperties": false
	}`,
}

// Known reports whether name is in the catalog.
func Known(name string) bool {
	_, ok := argSchemas[name]
	return ok
}

// AllowedAnonymous reports whether the tool may run before identification.
func AllowedAnonymous(name string) bool {
	_, ok := anonymousAllowed[name]
	return ok
}

// Names returns the catalog in its published order.
func Names() []string {
	out := make([]string, len(catalogOrder))
	copy(out, catalogOrder)
	return out
}

// Description is the published form of one catalog entry.
type Description struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	Anonymous   bool            `json:"anonymous"`
}

// Descriptions renders the catalog for the HTTP surface, schemas included.
func Descriptions() []Description {
	infos := Infos()
	out := make([]Description, 0, len(infos))
	for _, info := range infos {
		out = append(out, Description{
			Name:        info.Name,
			Description: info.Desc,
			Schema:      json.RawMessage(argSchemas[info.Name]),
			Anonymous:   AllowedAnonymous(info.Name),
		})
	}
	return out
}

// ValidateArgs checks args against the tool's schema.
func ValidateArgs(tool string, args map[string]any) error {
	raw, ok := argSchemas[tool]
	if !ok {
		return fmt.Errorf("%w: unknown tool %q", contractx.ErrValidation, tool)
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(raw), gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %s", contractx.ErrValidation, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%w: %s: %s", contractx.ErrValidation, tool, strings.Join(msgs, "; "))
	}
	return nil
}

// Infos describes the catalog for the LLM function-calling surface.
func Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolIdentifyUser,
			Desc: "Bind the caller's phone number to the session so appointment tools become available.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"contact_number": {Type: schema.String, Desc: "Caller phone number in E.164 or local form", Required: true},
				"name":           {Type: schema.String, Desc: "Caller name, if given"},
			}),
		},
		{
			Name: ToolFetchSlots,
			Desc: "Suggest open appointment slots, optionally within a date range or part of day.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"from":        {Type: schema.String, Desc: "Range start date, e.g. 2026-03-01"},
				"to":          {Type: schema.String, Desc: "Range end date"},
				"time_of_day": {Type: schema.String, Desc: "morning, afternoon or evening", Enum: []string{"morning", "afternoon", "evening"}},
			}),
		},
		{
			Name: ToolBookAppointment,
			Desc: "Book an appointment at an exact date and time for the identified caller.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"date": {Type: schema.String, Desc: "Appointment date", Required: true},
				"time": {Type: schema.String, Desc: "Appointment time", Required: true},
				"name": {Type: schema.String, Desc: "Name to book under"},
			}),
		},
		{
			Name: ToolRetrieveAppointments,
			Desc: "List the identified caller's appointments, cancelled ones included.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		{
			Name: ToolCancelAppointment,
			Desc: "Cancel one of the caller's appointments by id.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"appointment_id": {Type: schema.String, Desc: "Id returned by booking or retrieval", Required: true},
			}),
		},
		{
			Name: ToolModifyAppointment,
			Desc: "Move an existing appointment to a new date and time.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"appointment_id": {Type: schema.String, Desc: "Id of the appointment to move", Required: true},
				"new_date":       {Type: schema.String, Desc: "New date", Required: true},
				"new_time":       {Type: schema.String, Desc: "New time", Required: true},
			}),
		},
		{
			Name: ToolEndConversation,
			Desc: "Close the session, freeze its history and produce the summary.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"reason": {Type: schema.String, Desc: "Why the conversation ended"},
			}),
		},
	}
}
