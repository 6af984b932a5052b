package models

// Requests for admin HTTP endpoints. Defined in domain for consistency and reuse.

type SubscribeRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
	Mode    int      `json:"mode" default:"2" validate:"oneof=2 3"`
}

type WatchlistRequest struct {
	Recipient string `json:"recipient" validate:"required"`
}
