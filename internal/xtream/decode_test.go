package xtream

import (
	"encoding/json"
	"testing"
)

func TestFlexInt(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{`42`, 42},
		{`"42"`, 42},
		{`" 42 "`, 42},
		{`42.9`, 42},
		{`"3.5"`, 3},
		{`null`, 0},
		{`""`, 0},
		{`"abc"`, 0},
		{`true`, 0},
	}
	for _, c := range cases {
		var v FlexInt
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Errorf("FlexInt(%s): unexpected error %v", c.in, err)
		}
		if v.Int() != c.want {
			t.Errorf("FlexInt(%s) = %d, want %d", c.in, v, c.want)
		}
	}
}

func TestOptInt(t *testing.T) {
	cases := []struct {
		in    string
		want  int
		valid bool
	}{
		{`7`, 7, true},
		{`"7"`, 7, true},
		{`0`, 0, true},
		{`null`, 0, false},
		{`""`, 0, false},
		{`"x"`, 0, false},
	}
	for _, c := range cases {
		var v OptInt
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Errorf("OptInt(%s): %v", c.in, err)
		}
		if v.Value != c.want || v.Valid != c.valid {
			t.Errorf("OptInt(%s) = %+v, want {%d %v}", c.in, v, c.want, c.valid)
		}
	}
}

func TestOptFloat(t *testing.T) {
	cases := []struct {
		in    string
		want  float64
		valid bool
	}{
		{`7.5`, 7.5, true},
		{`"7.5"`, 7.5, true},
		{`"8"`, 8, true},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"N/A"`, 0, false},
	}
	for _, c := range cases {
		var v OptFloat
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Errorf("OptFloat(%s): %v", c.in, err)
		}
		if v.Value != c.want || v.Valid != c.valid {
			t.Errorf("OptFloat(%s) = %+v", c.in, v)
		}
	}
}

func TestFlexString(t *testing.T) {
	cases := []struct{ in, want string }{
		{`"abc"`, "abc"},
		{`123`, "123"},
		{`12.5`, "12.5"},
		{`null`, ""},
	}
	for _, c := range cases {
		var v FlexString
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Errorf("FlexString(%s): %v", c.in, err)
		}
		if v.String() != c.want {
			t.Errorf("FlexString(%s) = %q, want %q", c.in, v, c.want)
		}
	}
}

func TestStringList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`"one.jpg"`, []string{"one.jpg"}},
		{`["a.jpg","","  ","b.jpg"]`, []string{"a.jpg", "b.jpg"}},
		{`[]`, nil},
		{`""`, nil},
		{`null`, nil},
		{`[1,2]`, []string{"1", "2"}}, // numeric elements stringify
	}
	for _, c := range cases {
		var v StringList
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Errorf("StringList(%s): %v", c.in, err)
		}
		if len(v) != len(c.want) {
			t.Errorf("StringList(%s) = %v, want %v", c.in, v, c.want)
			continue
		}
		for i := range v {
			if v[i] != c.want[i] {
				t.Errorf("StringList(%s)[%d] = %q, want %q", c.in, i, v[i], c.want[i])
			}
		}
	}
}

func TestBase64Text(t *testing.T) {
	cases := []struct{ in, want string }{
		{`"TmV3cyBhdCBUZW4="`, "News at Ten"}, // standard padding
		{`"TmV3cyBhdCBUZW4"`, "News at Ten"},  // raw, no padding
		{`"Plain title"`, "Plain title"},      // not base64: passthrough
		{`""`, ""},
		{`null`, ""},
	}
	for _, c := range cases {
		var v Base64Text
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Errorf("Base64Text(%s): %v", c.in, err)
		}
		if v.String() != c.want {
			t.Errorf("Base64Text(%s) = %q, want %q", c.in, v, c.want)
		}
	}
}

func TestDecode_oneBadFieldDoesNotFailResponse(t *testing.T) {
	// A panel mixing types inside one object must still decode.
	body := `{"stream_id":"101","num":null,"name":55,"epg_channel_id":"bbc1.uk","category_id":7,"tv_archive":"1"}`
	var s LiveStream
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.StreamID.Int() != 101 || s.Name.String() != "55" || s.CategoryID.String() != "7" {
		t.Errorf("stream = %+v", s)
	}
	if s.Num.Valid {
		t.Error("null num should be unset")
	}
}
