package recommend

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	item := Normalize(map[string]any{})
	if item == nil {
		t.Fatal("empty object must normalize")
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"name":        DefaultName,
		"description": DefaultDescription,
		"url":         DefaultURL,
		"image_url":   nil,
		"price":       nil,
		"features":    []any{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize({}) = %v, want %v", got, want)
	}
}

func TestNormalizeRejectsNonObjects(t *testing.T) {
	for _, raw := range []any{nil, "string", 42, []any{map[string]any{}}, json.RawMessage(`"x"`), []byte(`[1]`)} {
		if got := Normalize(raw); got != nil {
			t.Errorf("Normalize(%#v) = %+v, want nil", raw, got)
		}
	}
}

func TestNormalizeFieldResolution(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Item
	}{
		{
			name: "primary fields",
			raw: map[string]any{
				"name": "Router", "description": "Fast", "url": "/p/router",
				"image_url": "/img/r.png", "price": 99.0, "features": []any{"wifi", "", 3, "mesh"},
			},
			want: Item{Name: "Router", Description: "Fast", URL: "/p/router", Price: 99.0, Features: []string{"wifi", "mesh"}},
		},
		{
			name: "fallback fields",
			raw:  map[string]any{"product_name": "Cable", "desc": "Long", "product_url": "/p/cable", "image": "/img/c.png"},
			want: Item{Name: "Cable", Description: "Long", URL: "/p/cable", Features: []string{}},
		},
		{
			name: "url from product id",
			raw:  map[string]any{"name": "", "product_id": "p-7", "_id": "mongo-1"},
			want: Item{Name: DefaultName, Description: DefaultDescription, URL: "/product/p-7", Features: []string{}},
		},
		{
			name: "url from object id",
			raw:  map[string]any{"_id": "mongo-1", "features": "not a list"},
			want: Item{Name: DefaultName, Description: DefaultDescription, URL: "/product/mongo-1", Features: []string{}},
		},
		{
			name: "zero price preserved",
			raw:  map[string]any{"price": 0.0},
			want: Item{Name: DefaultName, Description: DefaultDescription, URL: DefaultURL, Price: 0.0, Features: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if got == nil {
				t.Fatal("unexpected nil")
			}
			if got.Name != tt.want.Name || got.Description != tt.want.Description || got.URL != tt.want.URL {
				t.Errorf("got %q/%q/%q, want %q/%q/%q", got.Name, got.Description, got.URL,
					tt.want.Name, tt.want.Description, tt.want.URL)
			}
			if !reflect.DeepEqual(got.Price, tt.want.Price) {
				t.Errorf("price = %#v, want %#v", got.Price, tt.want.Price)
			}
			if !reflect.DeepEqual(got.Features, tt.want.Features) {
				t.Errorf("features = %#v, want %#v", got.Features, tt.want.Features)
			}
		})
	}
}

func TestNormalizeImageFallback(t *testing.T) {
	item := Normalize(map[string]any{"image": "/img/c.png"})
	if item.ImageURL == nil || *item.ImageURL != "/img/c.png" {
		t.Errorf("image fallback not applied: %v", item.ImageURL)
	}
}

func TestNormalizePassThrough(t *testing.T) {
	item := Normalize(json.RawMessage(`{"name":"Case","is_accessory":true,"admin_priority":2,"score":0.8,"pricing":{"monthly":5}}`))
	if item == nil {
		t.Fatal("raw json object must normalize")
	}
	if !item.IsAccessory() || item.SortPriority() != 2 {
		t.Errorf("pass-through fields lost: %+v", item.Raw)
	}
	if p := item.Pricing(); p == nil || p.Monthly != 5.0 {
		t.Errorf("pricing not decoded: %+v", p)
	}

	data, _ := json.Marshal(item)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	if out["score"] != 0.8 || out["is_accessory"] != true {
		t.Errorf("extra fields must be serialized: %v", out)
	}
}
