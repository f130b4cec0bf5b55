package recommend

import (
	"encoding/json"
	"math"
	"strconv"
)

const (
	DefaultName        = "Produkt"
	DefaultDescription = "Keine Beschreibung verfügbar."
	DefaultURL         = "/products"
)

// Pricing is the structured price block some payloads carry next to price.
type Pricing struct {
	OneTime any `json:"one_time,omitempty"`
	Monthly any `json:"monthly,omitempty"`
	Annual  any `json:"annual,omitempty"`
}

// Item is a recommendation in display-ready shape. Raw keeps every original
// field so unknown keys survive the round trip to the renderer.
type Item struct {
	Name        string
	Description string
	URL         string
	ImageURL    *string
	Price       any
	Features    []string
	Raw         map[string]any
}

// IsAccessory reports whether the item belongs to the accessories section.
func (i Item) IsAccessory() bool {
	return truthy(i.Raw["is_accessory"])
}

// SortPriority is admin_priority, then priority, then 0.
func (i Item) SortPriority() float64 {
	if v, ok := i.Raw["admin_priority"]; ok && v != nil {
		return number(v)
	}
	if v, ok := i.Raw["priority"]; ok && v != nil {
		return number(v)
	}
	return 0
}

// Pricing decodes the pricing block when present.
func (i Item) Pricing() *Pricing {
	v, ok := i.Raw["pricing"]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var p Pricing
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	return &p
}

func (i Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(i.Raw)+6)
	for k, v := range i.Raw {
		out[k] = v
	}
	out["name"] = i.Name
	out["description"] = i.Description
	out["url"] = i.URL
	if i.ImageURL != nil {
		out["image_url"] = *i.ImageURL
	} else {
		out["image_url"] = nil
	}
	out["price"] = i.Price
	features := i.Features
	if features == nil {
		features = []string{}
	}
	out["features"] = features
	return json.Marshal(out)
}

// truthy follows the loose truthiness of the widget payloads.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0 && !math.IsNaN(val)
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	}
	return true
}

func number(v any) float64 {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) {
			return 0
		}
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if val {
			return 1
		}
	}
	return 0
}
