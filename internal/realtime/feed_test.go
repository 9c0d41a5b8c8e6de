package realtime

import "testing"

func TestParseChange(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		kind    EventKind
		id      string
		wantErr bool
	}{
		{
			name: "insert",
			data: `{"type":"INSERT","record":{"id":"h1","user_id":"u1","habit_name":"Read","frequency":"daily","selected_days":[],"selected_dates":[]},"old_record":null}`,
			kind: EventInsert,
			id:   "h1",
		},
		{
			name: "delete with key only",
			data: `{"type":"DELETE","record":null,"old_record":{"id":"h2"}}`,
			kind: EventDelete,
			id:   "h2",
		},
		{
			name: "postgres timestamp offset",
			data: `{"type":"UPDATE","record":{"id":"h3","user_id":"u1","reminder_time":"2024-03-10T13:00:00+00:00","frequency":"weekly","selected_days":["Monday"],"selected_dates":[]},"old_record":{}}`,
			kind: EventUpdate,
			id:   "h3",
		},
		{name: "unknown type", data: `{"type":"TRUNCATE","record":{"id":"x"}}`, wantErr: true},
		{name: "no row", data: `{"type":"INSERT"}`, wantErr: true},
		{name: "garbage", data: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseChange([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseChange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if ev.Kind != tt.kind || ev.Row().ID != tt.id {
				t.Errorf("parseChange() = %+v", ev)
			}
		})
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"https://abc.supabase.co", "wss://abc.supabase.co/realtime/v1/websocket?apikey=key&vsn=1.0.0", false},
		{"http://127.0.0.1:54321/", "ws://127.0.0.1:54321/realtime/v1/websocket?apikey=key&vsn=1.0.0", false},
		{"ftp://example.com", "", true},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.base, "key")
		if (err != nil) != tt.wantErr {
			t.Errorf("websocketURL(%q) error = %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("websocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
