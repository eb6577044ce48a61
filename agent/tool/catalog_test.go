package tool

import (
	"errors"
	"testing"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

func TestKnownCoversCatalog(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		if !Known(name) {
			t.Fatalf("catalog tool %q not known", name)
		}
	}
	if Known("math.evaluate") {
		t.Fatal("tool outside the catalog reported as known")
	}
}

func TestInfosMatchCatalog(t *testing.T) {
	t.Parallel()

	infos := Infos()
	names := Names()
	if len(infos) != len(names) {
		t.Fatalf("infos = %d, catalog = %d", len(infos), len(names))
	}
	for i, info := range infos {
		if info.Name != names[i] {
			t.Fatalf("infos[%d] = %q, want %q", i, info.Name, names[i])
		}
		if info.Desc == "" {
			t.Fatalf("tool %q has no description", info.Name)
		}
	}
}

func TestAnonymousAllowance(t *testing.T) {
	t.Parallel()

	allowed := map[string]bool{
		ToolIdentifyUser:         true,
		ToolFetchSlots:           true,
		ToolEndConversation:      true,
		ToolBookAppointment:      false,
		ToolRetrieveAppointments: false,
		ToolCancelAppointment:    false,
		ToolModifyAppointment:    false,
	}
	for name, want := range allowed {
		if got := AllowedAnonymous(name); got != want {
			t.Fatalf("AllowedAnonymous(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestValidateArgs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr bool
	}{
		{name: "identify ok", tool: ToolIdentifyUser, args: map[string]any{"contact_number": "+15551234567"}},
		{name: "identify missing contact", tool: ToolIdentifyUser, args: map[string]any{"name": "Ada"}, wantErr: true},
		{name: "identify contact too short", tool: ToolIdentifyUser, args: map[string]any{"contact_number": "123"}, wantErr: true},
		{name: "fetch no args", tool: ToolFetchSlots, args: nil},
		{name: "fetch bad window", tool: ToolFetchSlots, args: map[string]any{"time_of_day": "midnight"}, wantErr: true},
		{name: "fetch stray key", tool: ToolFetchSlots, args: map[string]any{"dates": "tomorrow"}, wantErr: true},
		{name: "book ok", tool: ToolBookAppointment, args: map[string]any{"date": "2026-03-02", "time": "09:00"}},
		{name: "book missing time", tool: ToolBookAppointment, args: map[string]any{"date": "2026-03-02"}, wantErr: true},
		{name: "book non-string date", tool: ToolBookAppointment, args: map[string]any{"date": 20260302, "time": "09:00"}, wantErr: true},
		{name: "cancel ok", tool: ToolCancelAppointment, args: map[string]any{"appointment_id": "a1"}},
		{name: "cancel empty id", tool: ToolCancelAppointment, args: map[string]any{"appointment_id": ""}, wantErr: true},
		{name: "modify ok", tool: ToolModifyAppointment, args: map[string]any{"appointment_id": "a1", "new_date": "2026-03-02", "new_time": "10:30"}},
		{name: "modify missing new_time", tool: ToolModifyAppointment, args: map[string]any{"appointment_id": "a1", "new_date": "2026-03-02"}, wantErr: true},
		{name: "end no args", tool: ToolEndConversation, args: nil},
		{name: "end with reason", tool: ToolEndConversation, args: map[string]any{"reason": "done"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateArgs(tc.tool, tc.args)
			if tc.wantErr {
				if !errors.Is(err, contractx.ErrValidation) {
					t.Fatalf("ValidateArgs() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateArgs() error = %v", err)
			}
		})
	}
}
