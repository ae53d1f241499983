package signal

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"peercall/internal/domain"
)

func TestDecode_Variants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Event
	}{
		{
			name: "user add",
			raw:  `{"Object":"User","Action":"add","Data":"alice"}`,
			want: domain.UserAdded{Name: "alice"},
		},
		{
			name: "user remove",
			raw:  `{"Object":"User","Action":"remove","Data":"bob"}`,
			want: domain.UserRemoved{Name: "bob"},
		},
		{
			name: "offer as object",
			raw:  `{"Object":"Call","Action":"offer","Data":{"Users":["B","C"],"LocalDescription":"ZGVzYw=="}}`,
			want: domain.CallOffer{Users: []string{"B", "C"}, LocalDescription: "ZGVzYw=="},
		},
		{
			name: "offer string-embedded",
			raw:  `{"Object":"Call","Action":"offer","Data":"{\"Users\":[\"B\"],\"LocalDescription\":\"ZGVzYw==\"}"}`,
			want: domain.CallOffer{Users: []string{"B"}, LocalDescription: "ZGVzYw=="},
		},
		{
			name: "invite with description",
			raw:  `{"Object":"Call","Action":"invite","Data":{"From":"A","Conference":"c1","LocalDescription":"ZGVzYw=="}}`,
			want: domain.CallInvite{From: "A", Conference: "c1", LocalDescription: "ZGVzYw=="},
		},
		{
			name: "invite without payload",
			raw:  `{"Object":"Call","Action":"invite"}`,
			want: domain.CallInvite{},
		},
		{
			name: "accepted string-embedded",
			raw:  `{"Object":"Call","Action":"accepted","Data":"{\"LocalDescription\":\"YW5z\"}"}`,
			want: domain.CallAccepted{LocalDescription: "YW5z"},
		},
		{
			name: "answer bare blob",
			raw:  `{"Object":"Call","Action":"answer","Data":"YW5z"}`,
			want: domain.CallAnswer{LocalDescription: "YW5z"},
		},
		{
			name: "answer wrapped",
			raw:  `{"Object":"Call","Action":"answer","Data":{"LocalDescription":"YW5z"}}`,
			want: domain.CallAnswer{LocalDescription: "YW5z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_UnknownMessage(t *testing.T) {
	for _, raw := range []string{
		`{"Object":"Chat","Action":"say","Data":"hi"}`,
		`{"Object":"Call","Action":"hangup"}`,
		`{"Object":"User","Action":"rename","Data":"x"}`,
	} {
		_, err := Decode([]byte(raw))
		if !errors.Is(err, ErrUnknownMessage) {
			t.Errorf("Decode(%s) = %v, want ErrUnknownMessage", raw, err)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"Object":"User","Action":"add"}`,
		`{"Object":"User","Action":"add","Data":""}`,
		`{"Object":"User","Action":"add","Data":42}`,
		`{"Object":"Call","Action":"offer","Data":{"Users":["B"]}}`,
		`{"Object":"Call","Action":"offer","Data":"{truncated"}`,
		`{"Object":"Call","Action":"answer","Data":""}`,
	} {
		_, err := Decode([]byte(raw))
		if err == nil {
			t.Errorf("Decode(%s): expected error", raw)
			continue
		}
		if errors.Is(err, ErrUnknownMessage) {
			t.Errorf("Decode(%s): malformed message reported as unknown", raw)
		}
	}
}

func TestEncode_OfferShape(t *testing.T) {
	data, err := Encode(domain.CallOffer{Users: []string{"B"}, LocalDescription: "blob"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"Object": "Call",
		"Action": "offer",
		"Data": map[string]any{
			"Users":            []any{"B"},
			"LocalDescription": "blob",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("encoded offer = %v, want %v", got, want)
	}
}

func TestEncode_EmptyInviteOmitsData(t *testing.T) {
	data, err := Encode(domain.CallInvite{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got, want := string(data), `{"Object":"Call","Action":"invite"}`; got != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}
}

func TestEncode_DecodesBack(t *testing.T) {
	events := []domain.Event{
		domain.UserAdded{Name: "alice"},
		domain.UserRemoved{Name: "alice"},
		domain.CallOffer{Users: []string{"b", "c"}, LocalDescription: "x"},
		domain.CallInvite{From: "a", Conference: "c", LocalDescription: "x"},
		domain.CallAccepted{Conference: "c", LocalDescription: "y"},
		domain.CallAnswer{LocalDescription: "y"},
	}
	for _, ev := range events {
		data, err := Encode(ev)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", ev, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s): %v", data, err)
		}
		if !reflect.DeepEqual(got, ev) {
			t.Errorf("round trip %#v -> %#v", ev, got)
		}
	}
}
