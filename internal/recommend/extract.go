package recommend

import (
	"log/slog"
	"sort"

	"WidgetCS/entity"
	"WidgetCS/internal/lib/sl"
)

// Source is one named place a message may carry recommendations.
type Source struct {
	Name string
	Get  func(msg map[string]any) any
}

// Sources are read in this order and concatenated; duplicates are kept.
var Sources = []Source{
	{Name: "personalized_recommendations", Get: field("personalized_recommendations")},
	{Name: "metadata.personalized_recommendations", Get: metadataField("personalized_recommendations")},
	{Name: "metadata.recommended_products", Get: metadataField("recommended_products")},
	{Name: "recommended_products", Get: field("recommended_products")},
	{Name: "metadata.products", Get: metadataField("products")},
	{Name: "products", Get: field("products")},
}

func field(key string) func(map[string]any) any {
	return func(msg map[string]any) any {
		return msg[key]
	}
}

func metadataField(key string) func(map[string]any) any {
	return func(msg map[string]any) any {
		meta, ok := msg["metadata"].(map[string]any)
		if !ok {
			return nil
		}
		return meta[key]
	}
}

// Result holds the normalized recommendations split by display section.
type Result struct {
	Products    []Item `json:"products"`
	Accessories []Item `json:"accessories"`
}

func (r Result) Empty() bool {
	return len(r.Products) == 0 && len(r.Accessories) == 0
}

type Normalizer struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{log: log.With(sl.Module("recommend"))}
}

// Extract collects, normalizes, orders and partitions the recommendations of
// a message payload.
func (n *Normalizer) Extract(msg map[string]any) Result {
	items := n.Collect(msg)
	res := Result{
		Products:    []Item{},
		Accessories: []Item{},
	}
	for _, it := range items {
		if it.IsAccessory() {
			res.Accessories = append(res.Accessories, it)
		} else {
			res.Products = append(res.Products, it)
		}
	}
	return res
}

// ExtractMessage reads the payload of a transcript message.
func (n *Normalizer) ExtractMessage(m entity.Message) Result {
	return n.Extract(m.Payload)
}

// Collect returns every normalized item of msg sorted by descending priority,
// keeping the original order for equal priorities.
func (n *Normalizer) Collect(msg map[string]any) []Item {
	if msg == nil {
		return nil
	}
	var items []Item
	for _, src := range Sources {
		for i, raw := range asList(src.Get(msg)) {
			item := Normalize(raw)
			if item == nil {
				n.log.Debug("skipping malformed recommendation",
					slog.String("source", src.Name),
					slog.Int("index", i),
				)
				continue
			}
			items = append(items, *item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortPriority() > items[j].SortPriority()
	})
	return items
}

func asList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []map[string]any:
		out := make([]any, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out
	}
	return nil
}
