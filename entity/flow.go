package entity

import "time"

// MainFlow is the reserved entry-point flow. It always exists and cannot be deleted.
const MainFlow = "main"

// Flow is a named set of options shown to a guided-chat visitor.
type Flow struct {
	ID        string       `json:"id" bson:"_id,omitempty"`
	Name      string       `json:"name" bson:"name" validate:"required,max=64"`
	Options   []FlowOption `json:"options" bson:"options" validate:"dive"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" bson:"updated_at"`
}

type FlowOption struct {
	ID          string       `json:"id" bson:"id" validate:"required"`
	Text        string       `json:"text" bson:"text" validate:"required"`
	Icon        string       `json:"icon,omitempty" bson:"icon,omitempty"`
	Order       int          `json:"order" bson:"order"`
	NextFlow    string       `json:"next_flow,omitempty" bson:"next_flow,omitempty"`
	BotResponse *BotResponse `json:"bot_response,omitempty" bson:"bot_response,omitempty"`
}

type BotResponse struct {
	Text     string `json:"text" bson:"text"`
	FollowUp string `json:"followUp,omitempty" bson:"follow_up,omitempty"`
}

// Option returns the option with the given id.
func (f *Flow) Option(id string) (FlowOption, bool) {
	for _, o := range f.Options {
		if o.ID == id {
			return o, true
		}
	}
	return FlowOption{}, false
}
